package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"aos/internal/models"
)

// Sentinel errors of the distillation engine. Callers translate these to
// their own boundary (HTTP 400/404); they are normal outcomes, not failures.
var (
	ErrEmptyTraceID  = errors.New("trace id must not be empty")
	ErrTraceNotFound = errors.New("no log events found for trace")
)

// distillLockTTL bounds how long a crashed process can hold a trace lock.
const distillLockTTL = 30 * time.Second

// DistillService is Odysseus, the observer: it extracts durable wisdom from a
// trace's log history before the agent's short-term context is discarded.
// Distillation is idempotent by default; at most one card exists per trace.
type DistillService struct {
	logs       *LogStore
	wisdom     *WisdomStore
	summarizer Summarizer
	redis      *RedisService
	metrics    *Metrics
}

// NewDistillService creates the distillation engine. redis and metrics may be
// nil; summarizer must not be.
func NewDistillService(logs *LogStore, wisdom *WisdomStore, summarizer Summarizer, redis *RedisService, metrics *Metrics) *DistillService {
	return &DistillService{
		logs:       logs,
		wisdom:     wisdom,
		summarizer: summarizer,
		redis:      redis,
		metrics:    metrics,
	}
}

// Distill analyzes a trace and persists one WisdomItem.
//
// Unless overwrite is requested, an already-distilled trace returns its
// existing card unchanged. A trace with no logged history (never logged, or
// already purged by retention) returns ErrTraceNotFound.
func (s *DistillService) Distill(ctx context.Context, traceID string, overwrite bool) (*models.WisdomItem, error) {
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return nil, ErrEmptyTraceID
	}
	if s.summarizer == nil {
		s.metrics.ObserveDistillation("error")
		return nil, ErrNoSummarizer
	}

	// The Redis lock only narrows the check-then-write window between
	// processes; the unique index on source_trace_id is what guarantees
	// at-most-once.
	lockKey := "aos:distill:" + traceID
	if acquired, _ := s.redis.AcquireLock(ctx, lockKey, distillLockTTL); acquired {
		defer s.redis.ReleaseLock(ctx, lockKey)
	}

	if !overwrite {
		existing, err := s.wisdom.FindByTrace(ctx, traceID)
		if err != nil {
			s.metrics.ObserveDistillation("error")
			return nil, err
		}
		if existing != nil {
			s.metrics.ObserveDistillation("existing")
			return existing, nil
		}
	}

	events, err := s.logs.ListByTrace(ctx, traceID, 0)
	if err != nil {
		s.metrics.ObserveDistillation("error")
		return nil, err
	}
	if len(events) == 0 {
		s.metrics.ObserveDistillation("not_found")
		return nil, ErrTraceNotFound
	}

	summary, err := s.summarizer.Summarize(ctx, traceID, events)
	if err != nil {
		s.metrics.ObserveDistillation("error")
		return nil, fmt.Errorf("summarization failed for trace %s: %w", traceID, err)
	}

	if overwrite {
		existing, err := s.wisdom.FindByTrace(ctx, traceID)
		if err != nil {
			s.metrics.ObserveDistillation("error")
			return nil, err
		}
		if existing != nil {
			item, err := s.wisdom.Overwrite(ctx, existing, summary.Title, summary.Summary, summary.Tags, summary.Confidence)
			if err != nil {
				s.metrics.ObserveDistillation("error")
				return nil, err
			}
			log.Printf("🔄 [ODYSSEUS] Re-distilled trace %s into card %s", traceID, item.ID)
			s.metrics.ObserveDistillation("created")
			return item, nil
		}
	}

	item, err := s.wisdom.Insert(ctx, &models.WisdomItem{
		SourceTraceID: traceID,
		Title:         summary.Title,
		Content:       summary.Summary,
		Tags:          summary.Tags,
		Confidence:    summary.Confidence,
	})
	if err != nil {
		s.metrics.ObserveDistillation("error")
		return nil, err
	}

	log.Printf("✅ [ODYSSEUS] Distilled trace %s into card %s (%s)", traceID, item.ID, item.Title)
	s.metrics.ObserveDistillation("created")
	return item, nil
}
