// Package workerpool implements the Worker Pool component (H): a fixed
// pool of W workers (default 6) draining per-connection events. Grounded
// on the teacher's WorkerPool (worker_pool.go): panic-recovering workers
// each draining a buffered task channel, shut down by closing the channel
// and waiting on a sync.WaitGroup.
//
// Adapted for the per-connection ordering guarantee spec.md's concurrency
// model requires — which a single shared task channel cannot provide — by
// sharding: each worker owns an independent channel, and a connection's fd
// is routed to worker fd % W for the lifetime of that connection, so all of
// one connection's events execute on the same goroutine in submission order
// while different connections run fully in parallel.
package workerpool

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/telemetry"
)

// Task is one unit of work: a connection's connect, input, or eof event.
type Task func()

// Pool is a fixed set of shards, each an independent worker goroutine
// draining its own buffered channel.
type Pool struct {
	shards       []chan Task
	wg           sync.WaitGroup
	ctx          context.Context
	logger       zerolog.Logger
	droppedTasks int64
}

// New creates a Pool with shardCount workers, each with a queue of
// queueSize tasks.
func New(shardCount, queueSize int, logger zerolog.Logger) *Pool {
	if shardCount < 1 {
		shardCount = 1
	}
	p := &Pool{
		shards: make([]chan Task, shardCount),
		logger: logger.With().Str("component", "worker_pool").Logger(),
	}
	for i := range p.shards {
		p.shards[i] = make(chan Task, queueSize)
	}
	return p
}

// Start launches one goroutine per shard. ctx's cancellation causes every
// worker to finish its current task and exit.
func (p *Pool) Start(ctx context.Context) {
	p.ctx = ctx
	for i := range p.shards {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(shard int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("shard", shard).Logger()

	for {
		select {
		case task, ok := <-p.shards[shard]:
			if !ok {
				return
			}
			p.runTask(task, logger)
		case <-p.ctx.Done():
			logger.Debug().Msg("worker shutting down")
			return
		}
	}
}

func (p *Pool) runTask(task Task, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("worker panic recovered; worker continues")
		}
	}()
	task()
}

// Submit enqueues task onto the shard owned by fd (fd % shard count), so
// every task submitted for the same fd lands on the same worker and runs
// in submission order relative to that connection's other tasks. If the
// shard's queue is full, the task is dropped rather than blocking the
// caller or spawning an unbounded goroutine.
func (p *Pool) Submit(fd int, task Task) {
	shard := p.shardFor(fd)
	select {
	case p.shards[shard] <- task:
		telemetry.WorkerQueueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(len(p.shards[shard])))
	default:
		atomic.AddInt64(&p.droppedTasks, 1)
		telemetry.WorkerTasksDroppedTotal.Inc()
		p.logger.Warn().Int("fd", fd).Int("shard", shard).Msg("shard queue full; task dropped")
	}
}

func (p *Pool) shardFor(fd int) int {
	n := len(p.shards)
	shard := fd % n
	if shard < 0 {
		shard += n
	}
	return shard
}

// Stop closes every shard's channel and blocks until all workers exit.
func (p *Pool) Stop() {
	for _, ch := range p.shards {
		close(ch)
	}
	p.wg.Wait()
}

// DroppedTasks reports how many tasks were dropped due to a full shard.
func (p *Pool) DroppedTasks() int64 {
	return atomic.LoadInt64(&p.droppedTasks)
}

// ShardCount reports the configured number of shards (workers).
func (p *Pool) ShardCount() int {
	return len(p.shards)
}
