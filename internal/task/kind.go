package task

import (
	"fmt"
	"strings"
)

// Kind is the type of remote job a task runs.
type Kind int

const (
	KindImport Kind = iota
	KindExport
	KindAction
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindImport:
		return "import"
	case KindExport:
		return "export"
	case KindAction:
		return "action"
	case KindProcess:
		return "process"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Collection returns the URL segment the platform files this kind's objects under.
func (k Kind) Collection() string {
	if k == KindProcess {
		return "processes"
	}
	return k.String() + "s"
}

// HasNestedResults reports whether results of this kind can contain one result per
// step, each with its own failure dump.
func (k Kind) HasNestedResults() bool {
	return k == KindProcess
}

// ParseKind converts a command-line job type into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "import":
		return KindImport, nil
	case "export":
		return KindExport, nil
	case "action":
		return KindAction, nil
	case "process":
		return KindProcess, nil
	default:
		return 0, fmt.Errorf("unknown job type %q (expected import, export, action or process)", s)
	}
}

// Handle identifies one remote task run. It lives from creation until a terminal
// state is observed and is never persisted.
type Handle struct {
	Kind     Kind
	ObjectID string
	TaskID   string
}

func (h Handle) String() string {
	return fmt.Sprintf("%s %s task %s", h.Kind, h.ObjectID, h.TaskID)
}
