package specs

import "fmt"

// HostPlugin identifies the builtin plugin that serves a CallHost step.
type HostPlugin int

const (
	// HostInput serves public and private inputs
	HostInput HostPlugin = iota
	// Context serves the context input and output streams
	Context
	// Require aborts execution when its argument is zero
	Require
)

func (p HostPlugin) String() string {
	switch p {
	case HostInput:
		return "host_input"
	case Context:
		return "context"
	case Require:
		return "require"
	default:
		return fmt.Sprintf("plugin(%d)", int(p))
	}
}

// Builtin host function names.
const (
	HostFnWasmInput        = "wasm_input"
	HostFnWasmReadContext  = "wasm_read_context"
	HostFnWasmWriteContext = "wasm_write_context"
	HostFnRequire          = "require"
)

// ExternalHostCallEntry is one argument or return value exchanged with a
// foreign host function.
type ExternalHostCallEntry struct {
	Op    uint32        `json:"op"`
	Sig   HostSignature `json:"sig"`
	Value uint64        `json:"value"`
}

// ExternalHostCallTable lists the external host calls of one slice in eid
// order.
type ExternalHostCallTable struct {
	Entries []ExternalHostCallEntry `json:"entries"`
}

// NewExternalHostCallTable collects the external host calls of the steps.
func NewExternalHostCallTable(etable *EventTable) *ExternalHostCallTable {
	t := &ExternalHostCallTable{Entries: make([]ExternalHostCallEntry, 0)}
	if etable == nil {
		return t
	}
	for _, e := range etable.Entries {
		if info, ok := e.StepInfo.(ExternalHostCallInfo); ok {
			t.Entries = append(t.Entries, ExternalHostCallEntry{Op: info.Op, Sig: info.Sig, Value: info.Value})
		}
	}
	return t
}

// Len returns the number of entries.
func (t *ExternalHostCallTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}
