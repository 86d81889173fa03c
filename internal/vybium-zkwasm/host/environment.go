package host

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

var (
	// ErrInputExhausted is returned when wasm_input finds no input left
	ErrInputExhausted = errors.New("host input exhausted")

	// ErrHostMismatch is returned when a recorded host call disagrees with
	// the session's inputs
	ErrHostMismatch = errors.New("host call does not match session inputs")

	// ErrRequireFailed is returned when require is called with zero
	ErrRequireFailed = errors.New("require failed")
)

// Environment replays the builtin host calls of a trace against the inputs
// of a session.
type Environment struct {
	registry *Registry
	context  *ContextBuffer

	public  []uint64
	private []uint64
	pubPos  int
	privPos int
}

// NewEnvironment creates an environment serving the given inputs.
func NewEnvironment(registry *Registry, public, private, context []uint64) *Environment {
	return &Environment{
		registry: registry,
		context:  NewContextBuffer(context),
		public:   slices.Clone(public),
		private:  slices.Clone(private),
	}
}

// Context returns the context buffer of the environment.
func (e *Environment) Context() *ContextBuffer { return e.context }

// PublicInputs returns the public inputs consumed so far.
func (e *Environment) PublicInputs() []uint64 { return slices.Clone(e.public[:e.pubPos]) }

func next(inputs []uint64, pos *int) (uint64, error) {
	if *pos >= len(inputs) {
		return 0, ErrInputExhausted
	}
	v := inputs[*pos]
	*pos++
	return v, nil
}

func expectRet(info specs.CallHostInfo, want uint64) error {
	if info.Ret == nil || *info.Ret != want {
		return fmt.Errorf("%w: %s returned %v, input is %d", ErrHostMismatch, info.Name, info.Ret, want)
	}
	return nil
}

// Replay checks one step. Steps other than builtin host calls pass.
func (e *Environment) Replay(step *specs.EventTableEntry) error {
	info, ok := step.StepInfo.(specs.CallHostInfo)
	if !ok {
		return nil
	}
	if err := e.registry.Check(info); err != nil {
		return fmt.Errorf("eid %d: %w", step.Eid, err)
	}

	var err error
	switch info.Name {
	case specs.HostFnWasmInput:
		var v uint64
		if info.Args[0] != 0 {
			v, err = next(e.public, &e.pubPos)
		} else {
			v, err = next(e.private, &e.privPos)
		}
		if err == nil {
			err = expectRet(info, v)
		}
	case specs.HostFnWasmReadContext:
		err = e.context.WithLock(func(h *ContextHandle) error {
			v, err := h.Read()
			if err != nil {
				return err
			}
			return expectRet(info, v)
		})
	case specs.HostFnWasmWriteContext:
		err = e.context.WithLock(func(h *ContextHandle) error {
			h.Write(info.Args[0])
			return nil
		})
	case specs.HostFnRequire:
		if info.Args[0] == 0 {
			err = ErrRequireFailed
		}
	}
	if err != nil {
		return fmt.Errorf("eid %d: %w", step.Eid, err)
	}
	log.Trace(log.SliceModule, "Host call replayed", "eid", step.Eid, "fn", info.Name)
	return nil
}

// ReplayAll checks every step of a trace.
func (e *Environment) ReplayAll(steps []specs.EventTableEntry) error {
	for i := range steps {
		if err := e.Replay(&steps[i]); err != nil {
			return err
		}
	}
	return nil
}
