package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Submit when every slot is taken.
var ErrQueueFull = errors.New("worker queue full")

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of goroutines. Stop drains the
// queue before returning.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	n    int
	log  *zerolog.Logger

	stopOnce sync.Once
}

func NewPool(workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &Pool{jobs: make(chan Task, queueSize), n: workers, log: logger}
}

// Start launches the workers. Tasks receive ctx; cancelling it does not
// stop the workers, Stop does.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				if err := task(ctx); err != nil {
					p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
				}
			}
		}(i)
	}
}

// Stop closes the queue and waits for queued tasks to finish. Submit must
// not be called after Stop.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated rather than block the caller
		return ErrQueueFull
	}
}
