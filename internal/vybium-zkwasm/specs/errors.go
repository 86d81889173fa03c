package specs

import "errors"

var (
	// ErrEntryMissing is returned when the entry function is not exported
	ErrEntryMissing = errors.New("entry function is not exported")

	// ErrEntryNotCallable is returned when the entry function takes
	// parameters or returns values
	ErrEntryNotCallable = errors.New("entry function must have no params and no results")

	// ErrUnsupportedStep is returned for steps that have no table layout
	ErrUnsupportedStep = errors.New("unsupported step")

	// ErrUninitializedRead is returned when an address is read before it is
	// written and the image holds no value for it
	ErrUninitializedRead = errors.New("read of uninitialized memory")
)
