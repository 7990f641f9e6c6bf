package ai

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	id     int
	closed atomic.Bool
}

func (s *stubDetector) Detect(ctx context.Context, image []byte) (*Frame, error) {
	return &Frame{Width: s.id, Height: len(image)}, nil
}

func (s *stubDetector) Close() error {
	s.closed.Store(true)
	return nil
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(1, func(id int) (Detector, error) { return &stubDetector{id: id}, nil })
	require.NoError(t, err)
	defer pool.Close()

	d, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(d)
	frame, err := pool.Detect(context.Background(), []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Height)
}

func TestPoolClose(t *testing.T) {
	var created []*stubDetector
	pool, err := NewPool(3, func(id int) (Detector, error) {
		d := &stubDetector{id: id}
		created = append(created, d)
		return d, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Size())

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	for _, d := range created {
		assert.True(t, d.closed.Load())
	}
	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrDetectorClosed)
}

func TestPoolFactoryFailure(t *testing.T) {
	var first *stubDetector
	_, err := NewPool(2, func(id int) (Detector, error) {
		if id == 1 {
			return nil, errors.New("model missing")
		}
		first = &stubDetector{id: id}
		return first, nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model missing")
	assert.True(t, first.closed.Load())

	_, err = NewPool(0, nil)
	assert.Error(t, err)
}
