package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"aos/internal/logging"
	"aos/internal/models"
)

// ErrEmptyInstruction is returned for blank task instructions; nothing is
// logged or persisted in that case.
var ErrEmptyInstruction = errors.New("instruction must not be empty")

const (
	wisdomContextLimit = 6
	wisdomContextChars = 6000
	wisdomCacheKey     = "recent_wisdom_context"
	wisdomCacheTTL     = 30 * time.Second

	maxTraceMessageChars = 2000
)

// AgentService is Sisyphus, the execution agent. Each RunTask call is its own
// lifecycle unit: a fresh trace identifier, wisdom-primed context, one
// execution, one reset evaluation. "Clearing memory" is simply starting the
// next call with a new trace.
type AgentService struct {
	agentID   string
	entropy   *EntropyService
	logs      *LogStore
	wisdom    *WisdomStore
	distiller *DistillService
	actor     Actor
	metrics   *Metrics

	// memory priming cache: every concurrent task shares the same recent
	// wisdom snapshot for a short window instead of hitting the store
	memoryCache *cache.Cache
}

// NewAgentService creates the agent run loop. actor may be nil (NoLLM mode);
// metrics may be nil.
func NewAgentService(agentID string, entropy *EntropyService, logs *LogStore, wisdom *WisdomStore, distiller *DistillService, actor Actor, metrics *Metrics) *AgentService {
	return &AgentService{
		agentID:     agentID,
		entropy:     entropy,
		logs:        logs,
		wisdom:      wisdom,
		distiller:   distiller,
		actor:       actor,
		metrics:     metrics,
		memoryCache: cache.New(wisdomCacheTTL, time.Minute),
	}
}

// RunTask executes one instruction end to end: prime with recent wisdom, act,
// measure entropy and anxiety, and distill the trace when the reset policy
// fires. The returned record always carries the trace id.
func (s *AgentService) RunTask(ctx context.Context, instruction string) (*models.TaskResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}

	start := time.Now()
	traceID := uuid.NewString()
	logging.WithTrace(traceID, s.agentID).Debug("task started", "instruction_chars", len(instruction))
	tlog := &traceLogger{svc: s, ctx: ctx, traceID: traceID, spanID: uuid.NewString()}

	tlog.log(models.LevelInfo, "task.received: "+instruction)

	memoryContext, cardCount := s.loadMemoryContext(ctx)
	tlog.log(models.LevelInfo, fmt.Sprintf("memory.loaded cards=%d", cardCount))

	if s.actor == nil {
		tlog.log(models.LevelWarning, "agent.nollm")
		if err := tlog.flushErr(); err != nil {
			return nil, err
		}
		result := &models.TaskResult{
			Status:     "completed",
			TraceID:    traceID,
			Entropy:    s.entropy.CountTokens(instruction + "\n" + memoryContext),
			AgentState: models.StateNoLLM,
			Answer:     "No execution backend is configured. Set LLM_API_KEY (and optionally LLM_BASE_URL, LLM_MODEL) to enable the agent.",
			NextSteps: []string{
				"export LLM_API_KEY=...",
				"export LLM_MODEL=gpt-4o-mini",
				"retry POST /api/v1/agent/task",
			},
		}
		s.metrics.ObserveTask(result.AgentState, time.Since(start).Seconds())
		return result, nil
	}

	actResult, actErr := s.actor.Act(ctx, &ActRequest{
		Instruction: instruction,
		Memory:      memoryContext,
		TraceID:     traceID,
		Log:         tlog.log,
	})
	if actErr != nil {
		// The failure itself becomes part of the trace so the history stays
		// distillable for diagnosis.
		tlog.log(models.LevelError, "agent.error: "+actErr.Error())
		if err := tlog.flushErr(); err != nil {
			return nil, err
		}
		s.metrics.ObserveTask(models.StateError, time.Since(start).Seconds())
		return &models.TaskResult{
			Status:     "error",
			TraceID:    traceID,
			AgentState: models.StateError,
			Error:      actErr.Error(),
		}, nil
	}

	tlog.log(models.LevelInfo, "agent.done")
	if err := tlog.flushErr(); err != nil {
		return nil, err
	}

	cost := s.entropy.CountTokens(instruction + "\n" + memoryContext + "\n" + actResult.Answer)

	recent, err := s.logs.RecentByTrace(ctx, traceID, s.entropy.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load anxiety window: %w", err)
	}
	decision := s.entropy.Evaluate(cost, recent)
	s.metrics.ObserveDecision(decision)

	state := models.StateStable
	var wisdomItem *models.WisdomItem
	if decision.ShouldReset {
		log.Printf("💀 [SISYPHUS] Reset triggered for trace %s (pressure=%.2f anxiety=%.2f)",
			traceID, decision.Pressure, decision.Anxiety)
		state = models.StateReset

		wisdomItem, err = s.distiller.Distill(ctx, traceID, false)
		if err != nil {
			// The reset stands either way; losing the card is logged, not fatal.
			log.Printf("⚠️ [SISYPHUS] Distillation on reset failed for trace %s: %v", traceID, err)
			wisdomItem = nil
		}
	}

	s.metrics.ObserveTask(state, time.Since(start).Seconds())

	return &models.TaskResult{
		Status:     "completed",
		TraceID:    traceID,
		Entropy:    cost,
		AgentState: state,
		Answer:     actResult.Answer,
		NextSteps:  actResult.NextSteps,
		Wisdom:     wisdomItem,
	}, nil
}

// loadMemoryContext returns the formatted recent-wisdom block used to prime
// the execution capability, cached briefly across concurrent tasks.
func (s *AgentService) loadMemoryContext(ctx context.Context) (string, int) {
	type cached struct {
		text  string
		count int
	}
	if v, ok := s.memoryCache.Get(wisdomCacheKey); ok {
		c := v.(cached)
		return c.text, c.count
	}

	items, err := s.wisdom.ListRecent(ctx, wisdomContextLimit)
	if err != nil {
		log.Printf("⚠️ [SISYPHUS] Failed to load wisdom context: %v", err)
		return "", 0
	}

	text := formatWisdomContext(items, wisdomContextChars)
	s.memoryCache.Set(wisdomCacheKey, cached{text: text, count: len(items)}, cache.DefaultExpiration)
	return text, len(items)
}

// formatWisdomContext renders memory cards as a bounded text block.
func formatWisdomContext(items []models.WisdomItem, maxChars int) string {
	var blocks []string
	used := 0
	for _, item := range items {
		content := redactAndTruncate(strings.TrimSpace(item.Content), 800)
		block := strings.Join([]string{
			"- title: " + strings.TrimSpace(item.Title),
			"  tags: " + strings.Join(item.Tags, ","),
			"  trace_id: " + item.SourceTraceID,
			"  content:",
			"    " + strings.ReplaceAll(content, "\n", "\n    "),
		}, "\n")

		if used+len(block)+2 > maxChars {
			break
		}
		blocks = append(blocks, block)
		used += len(block) + 2
	}
	return strings.Join(blocks, "\n\n")
}

// traceLogger appends events to the current trace. The first store failure is
// retained and surfaced after the step completes: losing log events silently
// would corrupt the reset decision built on top of them.
type traceLogger struct {
	svc     *AgentService
	ctx     context.Context
	traceID string
	spanID  string

	mu  sync.Mutex
	err error
}

func (l *traceLogger) log(level, message string) {
	event := models.LogEvent{
		Timestamp:  time.Now().UTC(),
		TraceID:    l.traceID,
		SpanID:     l.spanID,
		SpanName:   "task_execution",
		Level:      models.NormalizeLevel(level),
		LoggerName: "aos.agent." + l.svc.agentID,
		Message:    redactAndTruncate(message, maxTraceMessageChars),
	}
	if err := l.svc.logs.AppendOne(l.ctx, event); err != nil {
		l.mu.Lock()
		if l.err == nil {
			l.err = fmt.Errorf("failed to append trace event: %w", err)
		}
		l.mu.Unlock()
	}
}

func (l *traceLogger) flushErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
