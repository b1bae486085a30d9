package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/app"
	"github.com/hibiken/asynq"
)

// Enqueuer is the producer side of the pipeline.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueTrade hands a paid order to the trade execution queue with
// bounded retries and exponential backoff.
func (e *Enqueuer) EnqueueTrade(ctx context.Context, job app.TradeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal trade job: %w", err)
	}

	task := asynq.NewTask(TypeTradeSend, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueTrade),
		asynq.MaxRetry(tradeMaxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueue trade job: %w", err)
	}
	return nil
}

// EnqueueMonitor schedules (or re-schedules) a poll of an in-flight
// transfer after the given delay.
func (e *Enqueuer) EnqueueMonitor(ctx context.Context, p MonitorPayload, delay time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal monitor payload: %w", err)
	}

	task := asynq.NewTask(TypeTradeMonitor, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueTradeMonitor),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(monitorMaxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueue monitor job: %w", err)
	}
	return nil
}

// EnqueueMarketSyncNow runs one market sync immediately, ahead of the
// periodic schedule.
func (e *Enqueuer) EnqueueMarketSyncNow(ctx context.Context) error {
	task := asynq.NewTask(TypeMarketSync, nil)
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueMarketSync)); err != nil {
		return fmt.Errorf("enqueue market sync: %w", err)
	}
	return nil
}
