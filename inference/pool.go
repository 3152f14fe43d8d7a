package inference

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by runs on a closed pool.
var ErrPoolClosed = errors.New("session pool is closed")

// Runner is a closable model runner.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

// Pool hands a fixed set of runners to concurrent callers.
type Pool struct {
	free    chan Runner
	runners []Runner
	closed  chan struct{}
	once    sync.Once
	err     error
}

// NewPool creates a pool over the runners. The pool owns them.
func NewPool(runners ...Runner) (*Pool, error) {
	if len(runners) == 0 {
		return nil, errors.New("pool needs at least one runner")
	}

	p := &Pool{
		free:    make(chan Runner, len(runners)),
		runners: runners,
		closed:  make(chan struct{}),
	}
	for _, r := range runners {
		p.free <- r
	}
	return p, nil
}

// Size is the number of runners in the pool.
func (p *Pool) Size() int {
	return len(p.runners)
}

// Run waits for a free runner, or until ctx is done or the pool closes, and
// runs the input on it.
func (p *Pool) Run(ctx context.Context, input []float32) ([]float32, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case r := <-p.free:
		defer func() { p.free <- r }()
		return r.Run(ctx, input)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPoolClosed
	}
}

// Close stops handing out runners, waits for in-flight runs and closes every
// runner. It is safe to call more than once.
func (p *Pool) Close() error {
	p.once.Do(func() {
		close(p.closed)

		var errs []error
		for range p.runners {
			r := <-p.free
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}
