// Package worker evaluates transactions submitted through the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/pipeline"
)

// Worker consumes TopicTransactionSubmitted and runs each message through
// the pipeline, which records and publishes the result.
type Worker struct {
	bus       domain.EventBus
	processor *pipeline.Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a worker. Call Start to begin consuming.
func NewWorker(bus domain.EventBus, processor *pipeline.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the submitted topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionSubmitted, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started", "topic", domain.TopicTransactionSubmitted)
	return nil
}

// handleMessage never returns an error for a bad payload: redelivery would
// not fix it, so the message is logged and dropped.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.TransactionRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.dropped.Add(1)
		slog.Warn("dropping malformed transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	tx, err := req.ToTransaction(time.Now())
	if err != nil {
		w.dropped.Add(1)
		slog.Warn("dropping invalid transaction",
			"message_id", msg.ID,
			"user_id", req.UserID,
			"error", err,
		)
		return nil
	}

	result, err := w.processor.Evaluate(ctx, tx)
	if err != nil {
		w.failed.Add(1)
		slog.Error("evaluation failed",
			"message_id", msg.ID,
			"user_id", tx.UserID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Info("transaction processed",
		"message_id", msg.ID,
		"evaluation_id", result.EvaluationID,
		"user_id", result.UserID,
		"risk_level", result.RiskLevel,
		"total_score", result.TotalScore,
	)
	return nil
}

// Stop cancels in-flight handlers and unsubscribes.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats reports worker activity.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Dropped           int64    `json:"dropped"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Dropped:           w.dropped.Load(),
		Failed:            w.failed.Load(),
	}
}
