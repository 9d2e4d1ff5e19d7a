package models

// Agent lifecycle states reported by the run loop.
const (
	StateStable = "Stable" // normal operation continues
	StateReset  = "Reset"  // context was wiped this cycle, wisdom distilled
	StateNoLLM  = "NoLLM"  // no execution backend configured, degraded mode
	StateError  = "Error"  // task execution failed, trace preserved
)

// TaskResult is the record returned by one run of the agent loop.
// TraceID is always present so callers can fetch or distill the trace later.
type TaskResult struct {
	Status     string      `json:"status"`
	TraceID    string      `json:"trace_id"`
	Entropy    int         `json:"entropy"`
	AgentState string      `json:"agent_state"`
	Answer     string      `json:"answer,omitempty"`
	NextSteps  []string    `json:"next_steps,omitempty"`
	Error      string      `json:"error,omitempty"`
	Wisdom     *WisdomItem `json:"wisdom,omitempty"`
}
