package models

// State is a pipeline state.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateParsing   State = "PARSING"
	StateParsed    State = "PARSED"
	StateAIEditing State = "AI_EDITING"
	StateEdited    State = "EDITED"
	StateRendering State = "RENDERING"
	StateRendered  State = "RENDERED"
	StatePrinting  State = "PRINTING"
	StatePrinted   State = "PRINTED"
	StateNotified  State = "NOTIFIED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Stage is the operation associated with a working state.
type Stage string

const (
	StageParse  Stage = "parse"
	StageEdit   Stage = "edit"
	StageRender Stage = "render"
	StagePrint  Stage = "print"
	StageNotify Stage = "notify"
)

// forward is the happy path. FAILED and CANCELLED are reachable from every
// non-terminal state and are handled in CanTransition.
var forward = map[State]State{
	StateReceived:  StateParsing,
	StateParsing:   StateParsed,
	StateParsed:    StateAIEditing,
	StateAIEditing: StateEdited,
	StateEdited:    StateRendering,
	StateRendering: StateRendered,
	StateRendered:  StatePrinting,
	StatePrinting:  StatePrinted,
	StatePrinted:   StateNotified,
}

var stages = map[State]Stage{
	StateParsing:   StageParse,
	StateAIEditing: StageEdit,
	StateRendering: StageRender,
	StatePrinting:  StagePrint,
	StatePrinted:   StageNotify,
}

// Next returns the successor on the happy path.
func (s State) Next() (State, bool) {
	n, ok := forward[s]
	return n, ok
}

// Stage returns the stage operation run while in s, if any.
func (s State) Stage() (Stage, bool) {
	st, ok := stages[s]
	return st, ok
}

func (s State) Terminal() bool {
	return s == StateNotified || s == StateFailed || s == StateCancelled
}

func (s State) Valid() bool {
	_, ok := forward[s]
	return ok || s.Terminal()
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to State) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	next, ok := forward[from]
	return ok && next == to
}
