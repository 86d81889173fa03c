package host

import (
	"errors"
	"sync"
	"testing"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

func hostStep(eid uint32, info specs.CallHostInfo) specs.EventTableEntry {
	return specs.EventTableEntry{Eid: eid, Fid: 1, Iid: eid - 1, Sp: 4095, StepInfo: info}
}

func input(public bool, ret uint64) specs.CallHostInfo {
	result := specs.I64
	arg := uint64(0)
	if public {
		arg = 1
	}
	return specs.CallHostInfo{
		Plugin: specs.HostInput, Name: specs.HostFnWasmInput,
		Params: []specs.VarType{specs.I32}, Result: &result,
		Args: []uint64{arg}, Ret: &ret,
	}
}

func readContext(ret uint64) specs.CallHostInfo {
	result := specs.I64
	return specs.CallHostInfo{Plugin: specs.Context, Name: specs.HostFnWasmReadContext, Result: &result, Ret: &ret}
}

func writeContext(v uint64) specs.CallHostInfo {
	return specs.CallHostInfo{
		Plugin: specs.Context, Name: specs.HostFnWasmWriteContext,
		Params: []specs.VarType{specs.I64}, Args: []uint64{v},
	}
}

func require(v uint64) specs.CallHostInfo {
	return specs.CallHostInfo{
		Plugin: specs.Require, Name: specs.HostFnRequire,
		Params: []specs.VarType{specs.I32}, Args: []uint64{v},
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry([]string{specs.HostFnRequire, specs.HostFnWasmInput, specs.HostFnRequire})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != specs.HostFnRequire {
		t.Errorf("unexpected names %v", names)
	}
	if i, ok := r.Index(specs.HostFnWasmInput); !ok || i != 1 {
		t.Errorf("wasm_input should have index 1, got %d %v", i, ok)
	}
	if _, ok := r.Lookup(specs.HostFnWasmReadContext); ok {
		t.Error("context read should not be enabled")
	}

	if _, err := NewRegistry([]string{"sha256"}); !errors.Is(err, ErrUnknownHostFunction) {
		t.Errorf("expected ErrUnknownHostFunction, got %v", err)
	}

	t.Run("check", func(t *testing.T) {
		if err := r.Check(input(true, 1)); err != nil {
			t.Errorf("valid call rejected: %v", err)
		}
		if err := r.Check(readContext(1)); !errors.Is(err, ErrHostFunctionDisabled) {
			t.Errorf("expected ErrHostFunctionDisabled, got %v", err)
		}
		bad := input(true, 1)
		bad.Plugin = specs.Context
		if err := r.Check(bad); err == nil {
			t.Error("wrong plugin should be rejected")
		}
		bad = require(1)
		bad.Args = nil
		if err := r.Check(bad); err == nil {
			t.Error("missing argument should be rejected")
		}
	})
}

func TestContextBuffer(t *testing.T) {
	b := NewContextBuffer([]uint64{7, 8})

	var got []uint64
	err := b.WithLock(func(h *ContextHandle) error {
		for range 2 {
			v, err := h.Read()
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		_, err := h.Read()
		return err
	})
	if !errors.Is(err, ErrContextExhausted) {
		t.Fatalf("expected ErrContextExhausted, got %v", err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("unexpected reads %v", got)
	}

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.WithLock(func(h *ContextHandle) error {
				h.Write(uint64(i))
				return nil
			})
		}()
	}
	wg.Wait()

	snap := b.Snapshot()
	if snap.Consumed != 2 || len(snap.Output) != 16 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	snap.Output[0] = 99
	if b.Snapshot().Output[0] == 99 {
		t.Error("snapshot should not alias the buffer")
	}
}

func TestEnvironmentReplay(t *testing.T) {
	registry, err := NewRegistry(Builtins())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	steps := []specs.EventTableEntry{
		hostStep(1, input(true, 10)),
		hostStep(2, input(false, 20)),
		{Eid: 3, Fid: 1, Iid: 2, Sp: 4094, StepInfo: specs.DropInfo{}},
		hostStep(4, readContext(30)),
		hostStep(5, writeContext(31)),
		hostStep(6, require(1)),
	}

	t.Run("valid", func(t *testing.T) {
		env := NewEnvironment(registry, []uint64{10}, []uint64{20}, []uint64{30})
		if err := env.ReplayAll(steps); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if pub := env.PublicInputs(); len(pub) != 1 || pub[0] != 10 {
			t.Errorf("unexpected public inputs %v", pub)
		}
		snap := env.Context().Snapshot()
		if snap.Consumed != 1 || len(snap.Output) != 1 || snap.Output[0] != 31 {
			t.Errorf("unexpected context %+v", snap)
		}
	})

	tests := []struct {
		name    string
		public  []uint64
		private []uint64
		context []uint64
		steps   []specs.EventTableEntry
		want    error
	}{
		{"public exhausted", nil, []uint64{20}, []uint64{30}, steps, ErrInputExhausted},
		{"private mismatch", []uint64{10}, []uint64{21}, []uint64{30}, steps, ErrHostMismatch},
		{"context exhausted", []uint64{10}, []uint64{20}, nil, steps, ErrContextExhausted},
		{"require zero", nil, nil, nil, []specs.EventTableEntry{hostStep(1, require(0))}, ErrRequireFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvironment(registry, tt.public, tt.private, tt.context)
			if err := env.ReplayAll(tt.steps); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
