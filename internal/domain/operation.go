package domain

import (
	"fmt"
	"time"

	"example.com/syncengine/internal/value"
)

// OpKind enumerates workout mutation kinds. Every switch over OpKind must be
// exhaustive; adding a kind is a compile-visible obligation at each call site.
type OpKind int

const (
	OpSetField OpKind = iota
	OpAddChild
	OpRemoveChild
	OpLogCompletion
)

// String returns the wire name of the operation kind.
func (k OpKind) String() string {
	switch k {
	case OpSetField:
		return "set_field"
	case OpAddChild:
		return "add_child"
	case OpRemoveChild:
		return "remove_child"
	case OpLogCompletion:
		return "log_completion"
	default:
		return fmt.Sprintf("op_kind(%d)", int(k))
	}
}

// Target addresses a child record inside an aggregate. SetID may be empty for
// exercise-level operations.
type Target struct {
	ExerciseID string
	SetID      string
}

// Operation is the unit of mutation flowing from intent to the authority.
//
// IdempotencyKey is generated exactly once per logical intent and reused
// verbatim across network retries. Cause and UISource are provenance only
// and never affect semantics.
type Operation struct {
	IdempotencyKey  string
	Kind            OpKind
	Target          Target
	Field           string
	Payload         map[string]value.Value
	ClientTimestamp time.Time
	Cause           string
	UISource        string
}

// ActionType enumerates the closed set of canvas actions.
type ActionType int

const (
	ActionAcceptProposal ActionType = iota
	ActionRejectProposal
	ActionAddInstruction
	ActionAddNote
	ActionPause
	ActionResume
	ActionComplete
	ActionUndo
	ActionLogSet
)

// String returns the wire name of the action type.
func (t ActionType) String() string {
	switch t {
	case ActionAcceptProposal:
		return "ACCEPT_PROPOSAL"
	case ActionRejectProposal:
		return "REJECT_PROPOSAL"
	case ActionAddInstruction:
		return "ADD_INSTRUCTION"
	case ActionAddNote:
		return "ADD_NOTE"
	case ActionPause:
		return "PAUSE"
	case ActionResume:
		return "RESUME"
	case ActionComplete:
		return "COMPLETE"
	case ActionUndo:
		return "UNDO"
	case ActionLogSet:
		return "LOG_SET"
	default:
		return fmt.Sprintf("action_type(%d)", int(t))
	}
}

// ParseActionType maps a wire name back to its ActionType.
func ParseActionType(name string) (ActionType, error) {
	switch name {
	case "ACCEPT_PROPOSAL":
		return ActionAcceptProposal, nil
	case "REJECT_PROPOSAL":
		return ActionRejectProposal, nil
	case "ADD_INSTRUCTION":
		return ActionAddInstruction, nil
	case "ADD_NOTE":
		return ActionAddNote, nil
	case "PAUSE":
		return ActionPause, nil
	case "RESUME":
		return ActionResume, nil
	case "COMPLETE":
		return ActionComplete, nil
	case "UNDO":
		return ActionUndo, nil
	case "LOG_SET":
		return ActionLogSet, nil
	default:
		return 0, fmt.Errorf("unknown action type %q", name)
	}
}

// Action is the canvas counterpart of Operation. ExpectedVersion, when
// non-nil, makes the action conditional: the authority rejects it with a
// conflict if the canvas has moved past that version.
type Action struct {
	IdempotencyKey  string
	Type            ActionType
	CardID          string
	Payload         map[string]value.Value
	By              string
	ExpectedVersion *int64
	ClientTimestamp time.Time
}
