package vybiumzkwasm

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/circuits"
)

// ErrorCode represents a zkWasm session error code
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid session configuration
	ErrInvalidConfig

	// ErrInvalidTrace represents a trace bundle that cannot be loaded or
	// whose entry function cannot start a session
	ErrInvalidTrace

	// ErrHostReplay represents a host call that does not match the inputs
	ErrHostReplay

	// ErrCapacity represents a trace that does not fit the circuit size
	ErrCapacity

	// ErrSliceBuild represents a failure while slicing the trace
	ErrSliceBuild

	// ErrSetup represents a parameter or circuit setup error
	ErrSetup

	// ErrConstraint represents a slice whose assignment violates a constraint
	ErrConstraint

	// ErrProofGeneration represents any other failure while proving a slice
	ErrProofGeneration

	// ErrNotLoaded represents an operation run before a trace was loaded
	ErrNotLoaded
)

var codeNames = map[ErrorCode]string{
	ErrUnknown:         "unknown",
	ErrInvalidConfig:   "invalid config",
	ErrInvalidTrace:    "invalid trace",
	ErrHostReplay:      "host replay",
	ErrCapacity:        "capacity",
	ErrSliceBuild:      "slice build",
	ErrSetup:           "setup",
	ErrConstraint:      "constraint",
	ErrProofGeneration: "proof generation",
	ErrNotLoaded:       "not loaded",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", int(c))
}

// ZkWasmError represents a zkWasm session error
type ZkWasmError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *ZkWasmError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-zkwasm error [%s]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-zkwasm error [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *ZkWasmError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *ZkWasmError) Is(target error) bool {
	t, ok := target.(*ZkWasmError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Code returns a sentinel for matching with errors.Is.
func Code(code ErrorCode) error {
	return &ZkWasmError{Code: code}
}

func newError(code ErrorCode, message string, cause error) error {
	return &ZkWasmError{Code: code, Message: message, Cause: cause}
}

// classify wraps err, refining fallback when the cause is a capacity or
// constraint failure.
func classify(fallback ErrorCode, message string, err error) error {
	var zerr *ZkWasmError
	if errors.As(err, &zerr) {
		return err
	}
	code := fallback
	var capErr *circuits.CapacityError
	var cerr *circuits.ConstraintError
	switch {
	case errors.As(err, &capErr):
		code = ErrCapacity
	case errors.As(err, &cerr):
		code = ErrConstraint
	}
	return newError(code, message, err)
}
