package ledger

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/models"
)

// ErrProcessorStopped is returned for orders submitted to, or still queued
// in, a stopped processor.
var ErrProcessorStopped = errors.New("trade processor stopped")

// Executor applies a single order. *Ledger satisfies it.
type Executor interface {
	Execute(ctx context.Context, order models.TradeOrder) (models.TradeReceipt, error)
}

// TradeResult is what a worker sends back for one order
type TradeResult struct {
	Receipt models.TradeReceipt
	Err     error
}

type tradeJob struct {
	ctx      context.Context
	order    models.TradeOrder
	resultCh chan TradeResult
}

// TradeProcessor runs orders on a fixed pool of workers fed by a bounded
// queue. Orders for the same user are still serialized by the executor.
type TradeProcessor struct {
	exec       Executor
	logger     *logger.Logger
	workers    int
	tradeQueue chan tradeJob
	stopCh     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewProcessor creates a processor with the given worker count and queue
// capacity. Non-positive values fall back to 5 workers and 100 slots.
func NewProcessor(exec Executor, workers, queueSize int, log *logger.Logger) *TradeProcessor {
	if workers <= 0 {
		workers = 5
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &TradeProcessor{
		exec:       exec,
		logger:     log,
		workers:    workers,
		tradeQueue: make(chan tradeJob, queueSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start starts the worker pool
func (tp *TradeProcessor) Start() {
	for i := 0; i < tp.workers; i++ {
		tp.wg.Add(1)
		go tp.worker(i)
	}
	tp.logger.Info("Started trade workers", zap.Int("workers", tp.workers))
}

// Stop waits for in-flight orders, then fails whatever is still queued
// with ErrProcessorStopped. It is safe to call more than once.
func (tp *TradeProcessor) Stop() {
	tp.stopOnce.Do(func() {
		close(tp.stopCh)
		tp.wg.Wait()

		for {
			select {
			case job := <-tp.tradeQueue:
				job.resultCh <- TradeResult{Err: ErrProcessorStopped}
			default:
				close(tp.done)
				tp.logger.Info("Trade processor stopped")
				return
			}
		}
	})
}

func (tp *TradeProcessor) worker(id int) {
	defer tp.wg.Done()

	for {
		select {
		case <-tp.stopCh:
			tp.logger.Debug("Worker stopping", zap.Int("worker", id))
			return

		case job := <-tp.tradeQueue:
			select {
			case <-tp.stopCh:
				job.resultCh <- TradeResult{Err: ErrProcessorStopped}
				return
			default:
			}

			tp.logger.Debug("Worker processing trade",
				zap.Int("worker", id),
				zap.String("user_id", job.order.UserID),
				zap.String("type", string(job.order.Type)),
				zap.String("symbol", job.order.Symbol),
				zap.Int64("quantity", job.order.Quantity))

			if err := job.ctx.Err(); err != nil {
				job.resultCh <- TradeResult{Err: err}
				continue
			}
			receipt, err := tp.exec.Execute(job.ctx, job.order)
			job.resultCh <- TradeResult{Receipt: receipt, Err: err}
		}
	}
}

// Submit queues an order and waits for its result. It gives up when ctx is
// done, though an order already picked up by a worker still completes.
func (tp *TradeProcessor) Submit(ctx context.Context, order models.TradeOrder) (models.TradeReceipt, error) {
	select {
	case <-tp.stopCh:
		return models.TradeReceipt{}, ErrProcessorStopped
	default:
	}

	// Buffered so a worker never blocks on a caller that went away.
	resultCh := make(chan TradeResult, 1)
	job := tradeJob{ctx: ctx, order: order, resultCh: resultCh}

	select {
	case tp.tradeQueue <- job:
	case <-ctx.Done():
		return models.TradeReceipt{}, ctx.Err()
	case <-tp.stopCh:
		return models.TradeReceipt{}, ErrProcessorStopped
	}

	select {
	case result := <-resultCh:
		return result.Receipt, result.Err
	case <-ctx.Done():
		return models.TradeReceipt{}, ctx.Err()
	case <-tp.done:
		// Stop may have drained this job already.
		select {
		case result := <-resultCh:
			return result.Receipt, result.Err
		default:
			return models.TradeReceipt{}, ErrProcessorStopped
		}
	}
}
