// Package agent runs the reasoning loop that turns a natural-language
// question into tool calls and a final structured answer.
package agent

// State names the phase a turn is in. A turn moves REASONING →
// TOOL_DISPATCH → REASONING until the model answers without tool calls,
// a failure threshold trips, or the iteration cap is reached.
type State string

const (
	StateReasoning    State = "REASONING"
	StateToolDispatch State = "TOOL_DISPATCH"
	StateDone         State = "DONE"
)

// Progress stages reported to the client while a turn runs.
const (
	StageReasoning    = "reasoning"
	StageRunningTools = "executing_tools"
	StageSynthesizing = "synthesizing"
	StageFormatting   = "formatting"
)

// Terminal step labels recorded on the turn output.
const (
	StepCompleted        = "completed"
	StepConversational   = "conversational"
	StepMaxIterations    = "max_iterations_reached"
	StepFailuresExplained = "tool_failures_explained"
	StepCodeExecRequired = "code_execution_required"
	StepModelError       = "model_error"
)

// RunRequest is one user turn.
type RunRequest struct {
	SessionID string
	Query     string

	// Status, when set, receives progress stage names as the turn advances.
	Status func(stage string)
}
