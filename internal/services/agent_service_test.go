package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aos/internal/models"
)

// stubActor scripts the execution capability for lifecycle tests.
type stubActor struct {
	answer    string
	nextSteps []string
	err       error
	errorLogs int // ERROR events emitted into the trace before answering
}

func (a *stubActor) Act(_ context.Context, req *ActRequest) (*ActResult, error) {
	for i := 0; i < a.errorLogs; i++ {
		req.Log(models.LevelError, "step failed: connection refused")
	}
	if a.err != nil {
		return nil, a.err
	}
	return &ActResult{Answer: a.answer, NextSteps: a.nextSteps}, nil
}

func newAgentFixture(t *testing.T, actor Actor) (*AgentService, *LogStore, *WisdomStore) {
	t.Helper()

	db := newTestDB(t)
	logs := NewLogStore(db)
	wisdom := NewWisdomStore(db)
	entropy := NewEntropyService(128000, 0.8, 10)
	distiller := NewDistillService(logs, wisdom, NewHeuristicSummarizer(), nil, nil)
	agent := NewAgentService("test-agent", entropy, logs, wisdom, distiller, actor, nil)
	return agent, logs, wisdom
}

func TestRunTask_EmptyInstruction(t *testing.T) {
	agent, _, _ := newAgentFixture(t, &stubActor{answer: "ok"})

	if _, err := agent.RunTask(context.Background(), "  "); !errors.Is(err, ErrEmptyInstruction) {
		t.Errorf("Expected ErrEmptyInstruction, got %v", err)
	}
}

func TestRunTask_Stable(t *testing.T) {
	agent, logs, _ := newAgentFixture(t, &stubActor{
		answer:    "deployed the service",
		nextSteps: []string{"verify health endpoint"},
	})
	ctx := context.Background()

	result, err := agent.RunTask(ctx, "deploy the service")
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if result.Status != "completed" {
		t.Errorf("Expected completed, got %q", result.Status)
	}
	if result.AgentState != models.StateStable {
		t.Errorf("Expected stable state, got %q", result.AgentState)
	}
	if result.TraceID == "" {
		t.Error("Expected a trace id")
	}
	if result.Entropy <= 0 {
		t.Errorf("Expected positive entropy, got %d", result.Entropy)
	}
	if result.Wisdom != nil {
		t.Error("Stable run must not distill")
	}

	// The lifecycle itself must be observable in the trace log
	events, err := logs.ListByTrace(ctx, result.TraceID, 0)
	if err != nil {
		t.Fatalf("ListByTrace failed: %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("Expected lifecycle events in trace, got %d", len(events))
	}
	if !strings.HasPrefix(events[0].Message, "task.received:") {
		t.Errorf("First event should be task.received, got %q", events[0].Message)
	}
	if events[len(events)-1].Message != "agent.done" {
		t.Errorf("Last event should be agent.done, got %q", events[len(events)-1].Message)
	}
}

func TestRunTask_ErrorStormTriggersReset(t *testing.T) {
	// 9 errors inside a window of 10 push anxiety to 0.9, past the 0.8
	// threshold: the task completes, but the loop resets and distills.
	agent, _, wisdom := newAgentFixture(t, &stubActor{
		answer:    "finished despite failures",
		errorLogs: 9,
	})
	ctx := context.Background()

	result, err := agent.RunTask(ctx, "flaky deployment")
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if result.AgentState != models.StateReset {
		t.Fatalf("Expected reset state, got %q", result.AgentState)
	}
	if result.Status != "completed" {
		t.Errorf("Reset still completes the task, got %q", result.Status)
	}
	if result.Wisdom == nil {
		t.Fatal("Reset must distill the trace into wisdom")
	}
	if result.Wisdom.SourceTraceID != result.TraceID {
		t.Errorf("Wisdom card points at wrong trace: %q", result.Wisdom.SourceTraceID)
	}

	// The card is persisted, not just returned
	found, err := wisdom.FindByTrace(ctx, result.TraceID)
	if err != nil {
		t.Fatalf("FindByTrace failed: %v", err)
	}
	if found == nil || found.ID != result.Wisdom.ID {
		t.Errorf("Distilled card not persisted: %+v", found)
	}
}

func TestRunTask_ActorFailure(t *testing.T) {
	agent, logs, _ := newAgentFixture(t, &stubActor{err: errors.New("model unavailable")})
	ctx := context.Background()

	result, err := agent.RunTask(ctx, "do something")
	if err != nil {
		t.Fatalf("RunTask should absorb actor failures, got %v", err)
	}

	if result.Status != "error" || result.AgentState != models.StateError {
		t.Errorf("Expected error state, got %q/%q", result.Status, result.AgentState)
	}
	if result.Error == "" {
		t.Error("Expected error message in result")
	}

	// The failure is written into the trace so it stays distillable
	events, err := logs.ListByTrace(ctx, result.TraceID, 0)
	if err != nil {
		t.Fatalf("ListByTrace failed: %v", err)
	}
	last := events[len(events)-1]
	if last.Level != models.LevelError || !strings.HasPrefix(last.Message, "agent.error:") {
		t.Errorf("Expected trailing agent.error event, got %q (%s)", last.Message, last.Level)
	}
}

func TestRunTask_NoLLM(t *testing.T) {
	agent, _, _ := newAgentFixture(t, nil)

	result, err := agent.RunTask(context.Background(), "anything")
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if result.AgentState != models.StateNoLLM {
		t.Errorf("Expected nollm state, got %q", result.AgentState)
	}
	if !strings.Contains(result.Answer, "LLM_API_KEY") {
		t.Errorf("Degraded answer should explain how to enable the agent: %q", result.Answer)
	}
	if len(result.NextSteps) == 0 {
		t.Error("Expected setup next steps")
	}
}

func TestRunTask_MemoryPriming(t *testing.T) {
	var seenMemory string
	actor := actorFunc(func(_ context.Context, req *ActRequest) (*ActResult, error) {
		seenMemory = req.Memory
		return &ActResult{Answer: "ok"}, nil
	})

	agent, _, wisdom := newAgentFixture(t, actor)
	ctx := context.Background()

	if _, err := wisdom.Insert(ctx, &models.WisdomItem{
		SourceTraceID: "past-trace",
		Title:         "Timeout in payment gateway",
		Content:       "increase the retry budget before redeploying",
		Tags:          []string{"bug", "timeout"},
		Confidence:    0.4,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := agent.RunTask(ctx, "redeploy payments"); err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	if !strings.Contains(seenMemory, "Timeout in payment gateway") {
		t.Errorf("Wisdom card missing from memory context: %q", seenMemory)
	}
	if !strings.Contains(seenMemory, "past-trace") {
		t.Errorf("Memory context should cite the source trace: %q", seenMemory)
	}
}

// actorFunc adapts a function to the Actor interface.
type actorFunc func(ctx context.Context, req *ActRequest) (*ActResult, error)

func (f actorFunc) Act(ctx context.Context, req *ActRequest) (*ActResult, error) {
	return f(ctx, req)
}
