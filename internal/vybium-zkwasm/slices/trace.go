// Package slices partitions an execution trace into bounded slices and
// derives, slice by slice, everything a circuit needs to prove each one in
// isolation while linking it to its neighbours.
package slices

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

// TraceBundle is a recorded execution: the compiled program and the steps the
// interpreter executed from its entry function.
type TraceBundle struct {
	Compilation *specs.CompilationTable `json:"compilation"`
	Steps       []specs.EventTableEntry `json:"steps"`
}

// LoadTraceBundle reads a JSON trace bundle from disk.
func LoadTraceBundle(path string) (*TraceBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace bundle: %w", err)
	}
	var bundle TraceBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode trace bundle: %w", err)
	}
	if bundle.Compilation == nil {
		return nil, fmt.Errorf("trace bundle %s has no compilation table", path)
	}
	return &bundle, nil
}

// TraceSource yields executed steps in eid order. Next returns io.EOF once
// the execution has ended.
type TraceSource interface {
	Next() (*specs.EventTableEntry, error)
}

type stepSource struct {
	steps []specs.EventTableEntry
	pos   int
}

// NewStepSource serves steps already held in memory.
func NewStepSource(steps []specs.EventTableEntry) TraceSource {
	return &stepSource{steps: steps}
}

func (s *stepSource) Next() (*specs.EventTableEntry, error) {
	if s.pos >= len(s.steps) {
		return nil, io.EOF
	}
	e := &s.steps[s.pos]
	s.pos++
	return e, nil
}

// Source returns the steps of the bundle as a TraceSource.
func (b *TraceBundle) Source() TraceSource {
	return NewStepSource(b.Steps)
}
