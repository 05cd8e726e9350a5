// Package worker recomputes the savings-rate series on demand and on a
// schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"savingsrate/internal/amqp"
	"savingsrate/internal/core"
	"savingsrate/internal/log"
)

type Comparer interface {
	Compare(ctx context.Context) (core.ComparisonResult, error)
}

type ResultPublisher interface {
	PublishResult(ctx context.Context, requestID string, res core.ComparisonResult) error
}

// RefreshWorker runs one comparison per refresh request and publishes the
// outcome. Runs are serialized.
type RefreshWorker struct {
	comparer  Comparer
	publisher ResultPublisher
	logger    *log.Logger

	mu       sync.Mutex
	last     core.ComparisonResult
	lastAt   time.Time
	runCount int
}

// NewRefreshWorker builds a worker. A nil publisher only keeps the last
// result in memory.
func NewRefreshWorker(comparer Comparer, publisher ResultPublisher, logger *log.Logger) *RefreshWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &RefreshWorker{
		comparer:  comparer,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRefresh processes a single refresh request from AMQP.
func (w *RefreshWorker) HandleRefresh(ctx context.Context, msg *amqp.RefreshRequest) error {
	if msg == nil {
		return errors.New("nil refresh request")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	w.logger.InfoContext(ctx, "Processing refresh request",
		log.FieldRequestID, msg.RequestID, "reason", msg.Reason)

	res, err := w.comparer.Compare(ctx)
	if err != nil {
		return fmt.Errorf("compare profiles: %w", err)
	}
	w.last, w.lastAt = res, time.Now()
	w.runCount++

	if w.publisher != nil {
		if err := w.publisher.PublishResult(ctx, msg.RequestID, res); err != nil {
			return fmt.Errorf("publish result: %w", err)
		}
	}

	w.logger.InfoContext(ctx, "Refresh complete",
		log.FieldRequestID, msg.RequestID,
		"profiles", len(res.Profiles),
		"failures", len(res.Failures),
		log.FieldPoints, len(res.Reference.Points),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Refresh runs a refresh outside the queue, as the scheduler does when no
// broker is configured.
func (w *RefreshWorker) Refresh(ctx context.Context, reason string) error {
	return w.HandleRefresh(ctx, amqp.NewRefreshRequest(reason))
}

// Last returns the most recent result and when it was computed.
func (w *RefreshWorker) Last() (core.ComparisonResult, time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.lastAt, w.runCount > 0
}
