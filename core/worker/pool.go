package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoomigo/rentalbot/core/logger"
)

var (
	// ErrQueueClosed is returned when submit is attempted after pool shutdown.
	ErrQueueClosed = errors.New("worker: queue closed")
	// ErrQueueFull indicates the backlog is saturated and the job was not accepted.
	ErrQueueFull = errors.New("worker: queue full")
)

const idleTimeout = 30 * time.Second

// Options controls the behaviour of the pool.
type Options struct {
	// Min is the number of workers kept alive for the pool lifetime.
	Min int
	// Max bounds the total number of workers during bursts.
	Max int
	// QueueSize bounds the pending backlog.
	QueueSize int
}

type job struct {
	ctx  context.Context
	name string
	run  func(ctx context.Context)
}

// Pool executes submitted jobs on a bounded, elastically sized set of workers.
type Pool struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	live atomic.Int64
}

// NewPool starts a pool with sane defaults if options are zeroed.
func NewPool(opts Options) *Pool {
	if opts.Min <= 0 {
		opts.Min = 2
	}
	if opts.Max < opts.Min {
		opts.Max = opts.Min * 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}

	p := &Pool{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}

	for i := 0; i < opts.Min; i++ {
		p.live.Add(1)
		p.wg.Add(1)
		go p.coreWorker()
	}

	return p
}

// Submit schedules the provided function for asynchronous execution. It
// returns ErrQueueFull when the backlog is saturated and no extra worker
// could be started.
func (p *Pool) Submit(ctx context.Context, name string, run func(ctx context.Context)) error {
	if run == nil {
		return errors.New("worker: nil run function")
	}
	select {
	case <-p.stop:
		return ErrQueueClosed
	default:
	}

	j := job{ctx: ctx, name: name, run: run}

	select {
	case p.jobs <- j:
		return nil
	default:
	}

	// backlog full, grow toward Max before giving up; the fresh worker
	// will drain the queue, so a blocking send is safe here
	if p.tryGrow() {
		select {
		case p.jobs <- j:
			return nil
		case <-p.stop:
			return ErrQueueClosed
		}
	}
	return ErrQueueFull
}

// Dispatch submits the job and falls back to running it on the calling
// goroutine when the pool cannot accept it.
func (p *Pool) Dispatch(ctx context.Context, name string, run func(ctx context.Context)) {
	err := p.Submit(ctx, name, run)
	if err == nil {
		return
	}
	logger.Warn(ctx, "worker", "queue.full",
		slog.String("job", name),
		slog.String("mode", "caller"),
		slog.String("err", err.Error()),
	)
	run(ctx)
}

// Live reports the current number of workers.
func (p *Pool) Live() int {
	return int(p.live.Load())
}

// Close stops accepting jobs and waits for queued work to drain.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.stop)
		close(p.jobs)
		p.wg.Wait()
	})
}

func (p *Pool) tryGrow() bool {
	for {
		n := p.live.Load()
		if n >= int64(p.opts.Max) {
			return false
		}
		if p.live.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.extraWorker()
			return true
		}
	}
}

func (p *Pool) coreWorker() {
	defer p.wg.Done()
	defer p.live.Add(-1)
	for j := range p.jobs {
		p.handle(j)
	}
}

// extraWorker exits after sitting idle, shrinking the pool back to Min.
func (p *Pool) extraWorker() {
	defer p.wg.Done()
	defer p.live.Add(-1)
	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.handle(j)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idleTimeout)
		case <-timer.C:
			return
		}
	}
}

func (p *Pool) handle(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	j.run(ctx)
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "worker", "job.done",
			slog.String("job", j.name),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}
