package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is a TensorSession whose output is computed from its input.
type fakeSession struct {
	in     []float32
	out    []float32
	fn     func(in, out []float32)
	err    error
	delay  time.Duration
	gate   chan struct{}
	began  chan struct{}
	closed atomic.Bool
	runs   atomic.Int64
}

func newFakeSession(inputs, outputs int, fn func(in, out []float32)) *fakeSession {
	return &fakeSession{in: make([]float32, inputs), out: make([]float32, outputs), fn: fn}
}

func (f *fakeSession) Input() []float32  { return f.in }
func (f *fakeSession) Output() []float32 { return f.out }

func (f *fakeSession) Run() error {
	f.runs.Add(1)
	if f.began != nil {
		f.began <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return f.err
	}
	if f.fn != nil {
		f.fn(f.in, f.out)
	}
	return nil
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func sumInto(in, out []float32) {
	var s float32
	for _, v := range in {
		s += v
	}
	for i := range out {
		out[i] = s + float32(i)
	}
}

func TestProfiledSessionRun(t *testing.T) {
	fs := newFakeSession(3, 2, sumInto)
	ps := NewProfiledSession(fs)

	out, err := ps.Run(context.Background(), []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 7}, out)

	out[0] = 99
	assert.Equal(t, float32(6), fs.out[0], "output is copied")

	_, err = ps.Run(context.Background(), []float32{1})
	assert.Error(t, err, "input size must match the tensor")

	st := ps.Stats()
	assert.Equal(t, int64(1), st.Inferences)
	assert.Zero(t, st.Errors)
	assert.Equal(t, st.TotalLatency, st.LastLatency)

	fs.err = errors.New("boom")
	_, err = ps.Run(context.Background(), []float32{1, 2, 3})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int64(1), ps.Stats().Errors)

	ps.ResetStats()
	assert.Zero(t, ps.Stats().Inferences)

	require.NoError(t, ps.Close())
	assert.True(t, fs.closed.Load())
	_, err = ps.Run(context.Background(), []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, ps.Close())
}

func TestProfiledSessionCanceled(t *testing.T) {
	fs := newFakeSession(1, 1, sumInto)
	ps := NewProfiledSession(fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ps.Run(ctx, []float32{1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fs.runs.Load())
}

func TestSessionStatsAdd(t *testing.T) {
	a := SessionStats{Inferences: 2, TotalLatency: 4 * time.Millisecond, LastLatency: time.Millisecond}
	b := SessionStats{Inferences: 1, Errors: 1, TotalLatency: 2 * time.Millisecond, LastLatency: 2 * time.Millisecond}

	sum := a.Add(b)
	assert.Equal(t, int64(3), sum.Inferences)
	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, 6*time.Millisecond, sum.TotalLatency)
	assert.Equal(t, 2*time.Millisecond, sum.LastLatency)
	assert.Equal(t, 2*time.Millisecond, sum.AverageLatency())

	assert.Equal(t, time.Millisecond, a.Add(SessionStats{}).LastLatency)
	assert.Zero(t, SessionStats{}.AverageLatency())
}

func TestPool(t *testing.T) {
	var sessions []*fakeSession
	var runners []Runner
	for i := 0; i < 2; i++ {
		fs := newFakeSession(1, 1, sumInto)
		fs.delay = 5 * time.Millisecond
		sessions = append(sessions, fs)
		runners = append(runners, NewProfiledSession(fs))
	}

	p, err := NewPool(runners...)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v float32) {
			defer wg.Done()
			out, err := p.Run(context.Background(), []float32{v})
			assert.NoError(t, err)
			assert.Equal(t, []float32{v}, out)
		}(float32(i))
	}
	wg.Wait()

	assert.Equal(t, int64(10), sessions[0].runs.Load()+sessions[1].runs.Load())

	require.NoError(t, p.Close())
	for _, fs := range sessions {
		assert.True(t, fs.closed.Load())
	}

	_, err = p.Run(context.Background(), []float32{1})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, p.Close())
}

func TestPoolWaitsForRunner(t *testing.T) {
	fs := newFakeSession(1, 1, sumInto)
	fs.gate = make(chan struct{})
	fs.began = make(chan struct{}, 1)
	p, err := NewPool(NewProfiledSession(fs))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), []float32{1})
		done <- err
	}()
	<-fs.began

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Run(ctx, []float32{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()

	close(fs.gate)
	assert.NoError(t, <-done, "in-flight run finishes")
	assert.NoError(t, <-closed)
	assert.True(t, fs.closed.Load())
}

func TestNewPoolEmpty(t *testing.T) {
	_, err := NewPool()
	assert.Error(t, err)
}
