package ai

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Pool hands out a fixed set of detector instances, one goroutine per instance at a time.
type Pool struct {
	detectors []Detector
	free      chan Detector
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPool builds a pool of size detectors created by factory. Already created
// detectors are closed when the factory fails.
func NewPool(size int, factory func(workerID int) (Detector, error)) (*Pool, error) {
	if size <= 0 {
		return nil, errors.Errorf("pool size must be positive, got %d", size)
	}

	p := &Pool{
		detectors: make([]Detector, 0, size),
		free:      make(chan Detector, size),
		closed:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		d, err := factory(i)
		if err != nil {
			p.Close()
			return nil, errors.Wrapf(err, "create detector %d", i)
		}
		p.detectors = append(p.detectors, d)
		p.free <- d
	}
	return p, nil
}

// Size returns the number of detector instances.
func (p *Pool) Size() int {
	return len(p.detectors)
}

// Acquire blocks until a detector is free, the context is done or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (Detector, error) {
	select {
	case <-p.closed:
		return nil, ErrDetectorClosed
	default:
	}

	select {
	case d := <-p.free:
		return d, nil
	case <-p.closed:
		return nil, ErrDetectorClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a detector obtained from Acquire.
func (p *Pool) Release(d Detector) {
	select {
	case p.free <- d:
	default:
	}
}

// Detect runs one detection on a pooled instance.
func (p *Pool) Detect(ctx context.Context, image []byte) (*Frame, error) {
	d, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(d)
	return d.Detect(ctx, image)
}

// Close closes every detector. Later Acquire calls fail with ErrDetectorClosed.
func (p *Pool) Close() error {
	var firstErr error
	p.closeOnce.Do(func() {
		close(p.closed)
		for _, d := range p.detectors {
			if err := d.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
