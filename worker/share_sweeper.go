package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spectra-gallery/spectra-playground/cache"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/mq"
	"github.com/spectra-gallery/spectra-playground/store"
)

type PurgeExpiredSharesMessage struct {
	ResourceId string `json:"resourceId"`
}

// ShareSweeper consumes purge jobs and removes the expired share entries of
// the named resource.
type ShareSweeper struct {
	queue mq.MessageQueue
	store store.PlaygroundStore
	cache cache.PlaygroundCache
	log   logging.Logger
	now   func() time.Time
}

func NewShareSweeper(queue mq.MessageQueue, playgroundStore store.PlaygroundStore, playgroundCache cache.PlaygroundCache, log logging.Logger, now func() time.Time) *ShareSweeper {
	if now == nil {
		now = time.Now
	}
	return &ShareSweeper{
		queue: queue,
		store: playgroundStore,
		cache: playgroundCache,
		log:   log.With("component", "share-sweeper"),
		now:   now,
	}
}

// A resource rarely has more than a handful of shares; a minute is plenty.
const sweepVisibilityTimeout = 60

func (s *ShareSweeper) Run(shutdownCtx context.Context) {
	for {
		msg, err := s.queue.Receive(shutdownCtx, sweepVisibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.log.Error(shutdownCtx, "receive failed", "error", err)
			select {
			case <-shutdownCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue
		}

		if err := s.Handle(shutdownCtx, msg); err != nil {
			s.log.Error(shutdownCtx, "sweep failed", "error", err)
		}
	}
}

// Handle processes one message. Malformed messages are dropped; failed
// sweeps stay on the queue and are retried after the visibility timeout.
func (s *ShareSweeper) Handle(ctx context.Context, msg *mq.Message) error {
	var job PurgeExpiredSharesMessage
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil || job.ResourceId == "" {
		s.log.Warn(ctx, "dropping malformed sweep message", "messageId", msg.Id)
		return s.queue.Delete(context.Background(), msg)
	}

	// timeout should be a little less than queue visibility timeout
	sweepCtx, cancel := context.WithTimeout(context.Background(), (sweepVisibilityTimeout-1)*time.Second)
	defer cancel()

	tokens, err := s.store.DeleteExpiredShares(sweepCtx, job.ResourceId, s.now().Unix())
	if err != nil {
		return err
	}

	if len(tokens) > 0 {
		if err := s.cache.InvalidateShares(sweepCtx, tokens); err != nil {
			s.log.Warn(ctx, "failed to invalidate cached shares", "resourceId", job.ResourceId, "error", err)
		}
		s.log.Info(ctx, "expired shares removed", "resourceId", job.ResourceId, "count", len(tokens))
	}

	return s.queue.Delete(context.Background(), msg)
}
