package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientText is returned when a provider answered but read too little text
	ErrInsufficientText = errors.New("insufficient text")
	// ErrUnsupportedFormat is returned when an image cannot be decoded
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Reason tells why a provider's output could not be used. It is diagnostic only.
type Reason string

const (
	ReasonTransport        Reason = "transport"
	ReasonInsufficientText Reason = "insufficient_text"
)

// UnusableError reports a provider attempt that yielded no usable text
type UnusableError struct {
	Provider string
	Reason   Reason
	Err      error
}

func (e *UnusableError) Error() string {
	return fmt.Sprintf("%s unusable (%s): %v", e.Provider, e.Reason, e.Err)
}

func (e *UnusableError) Unwrap() error {
	return e.Err
}
