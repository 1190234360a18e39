package media

import (
	"context"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"voxbox/internal/domain/track"
)

const (
	frameSize     = 3840
	frameInterval = 20 * time.Millisecond

	// Exponent of the loudness curve behind SetVolumeLogarithmic.
	volumeExponent = 1.660964
)

// FileResource streams one file to the sink in fixed-size frames. The
// decode/encode step is the transport's job; the resource paces the bytes
// and carries the requested gain for the transport's encoder.
type FileResource struct {
	meta track.Track
	f    *os.File
	sink io.Writer

	gain atomic.Uint64

	done      chan struct{}
	err       error
	closeOnce sync.Once
}

func newFileResource(meta track.Track, f *os.File, sink io.Writer) *FileResource {
	r := &FileResource{
		meta: meta,
		f:    f,
		sink: sink,
		done: make(chan struct{}),
	}
	r.gain.Store(math.Float64bits(1))
	return r
}

// Track returns the resource's display metadata.
func (r *FileResource) Track() track.Track {
	return r.meta
}

// SetVolumeLogarithmic sets the gain from a 0..1 fraction on a
// logarithmic loudness scale.
func (r *FileResource) SetVolumeLogarithmic(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	r.gain.Store(math.Float64bits(math.Pow(fraction, volumeExponent)))
}

// Gain returns the effective gain for the transport's encoder.
func (r *FileResource) Gain() float64 {
	return math.Float64frombits(r.gain.Load())
}

// Start writes the first frame synchronously, so a nil return means audio
// is flowing, then paces the rest from a goroutine.
func (r *FileResource) Start(ctx context.Context) error {
	buf := make([]byte, frameSize)

	n, err := r.f.Read(buf)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "read first frame")
	}
	if n > 0 {
		if _, werr := r.sink.Write(buf[:n]); werr != nil {
			return errors.Wrap(werr, "write first frame")
		}
	}

	go r.pump(ctx, buf, err == io.EOF)
	return nil
}

func (r *FileResource) pump(ctx context.Context, buf []byte, eof bool) {
	defer close(r.done)

	if eof {
		return
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.err = ctx.Err()
			return
		case <-ticker.C:
			n, err := r.f.Read(buf)
			if n > 0 {
				if _, werr := r.sink.Write(buf[:n]); werr != nil {
					r.err = errors.Wrap(werr, "write frame")
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				r.err = errors.Wrap(err, "read frame")
				return
			}
		}
	}
}

// Wait blocks until the stream ends and returns its terminal error, if
// any.
func (r *FileResource) Wait() error {
	<-r.done
	return r.err
}

// Close releases the underlying file. Safe to call more than once.
func (r *FileResource) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.f.Close()
	})
	return err
}
