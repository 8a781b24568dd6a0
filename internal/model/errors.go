package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every analysis operation validates its parameters before
// touching data and reports failures as an *OpError wrapping one of these.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInsufficientData = errors.New("insufficient data")
	ErrDegenerateInput  = errors.New("degenerate input")
)

// OpError describes a failed analysis operation.
type OpError struct {
	Op   string // e.g. "moving-average"
	Kind error  // one of the Err* kinds above
	Msg  string
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Msg
}

// Unwrap lets errors.Is match the kind.
func (e *OpError) Unwrap() error {
	return e.Kind
}

// InvalidParameter builds an OpError of kind ErrInvalidParameter.
func InvalidParameter(op, format string, args ...interface{}) error {
	return &OpError{Op: op, Kind: ErrInvalidParameter, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientData builds an OpError of kind ErrInsufficientData.
func InsufficientData(op, format string, args ...interface{}) error {
	return &OpError{Op: op, Kind: ErrInsufficientData, Msg: fmt.Sprintf(format, args...)}
}

// DegenerateInput builds an OpError of kind ErrDegenerateInput.
func DegenerateInput(op, format string, args ...interface{}) error {
	return &OpError{Op: op, Kind: ErrDegenerateInput, Msg: fmt.Sprintf(format, args...)}
}

// ErrorKind returns a short label for err's kind, or "error" when err is not
// an OpError.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParameter):
		return "InvalidParameter"
	case errors.Is(err, ErrInsufficientData):
		return "InsufficientData"
	case errors.Is(err, ErrDegenerateInput):
		return "DegenerateInput"
	default:
		return "error"
	}
}
