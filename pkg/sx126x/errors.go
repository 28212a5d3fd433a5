package sx126x

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAcknowledgment is returned when the module never acknowledged a SET command
	ErrNoAcknowledgment = errors.New("sx126x: module did not acknowledge configuration")

	// ErrMissingDestination is returned when a fixed-scheme send has no destination
	ErrMissingDestination = errors.New("sx126x: fixed transmission requires a destination address")

	// ErrEmptyPayload is returned when sending zero bytes
	ErrEmptyPayload = errors.New("sx126x: payload is empty")

	// ErrNotConfigured is returned by operations that need a successful Apply first
	ErrNotConfigured = errors.New("sx126x: module has not been configured")

	// ErrReleased is returned after Close
	ErrReleased = errors.New("sx126x: driver has been closed")
)

// ValidationError reports a radio parameter that has no register encoding.
// It is always returned before any I/O takes place.
type ValidationError struct {
	Field string
	Value interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sx126x: invalid %s: %v", e.Field, e.Value)
}

// ConfigError is returned by Apply when the retry budget is exhausted
type ConfigError struct {
	Attempts int
	LastErr  error // last I/O error seen, nil if the module simply never answered
}

func (e *ConfigError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%v after %d attempts: %v", ErrNoAcknowledgment, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("%v after %d attempts", ErrNoAcknowledgment, e.Attempts)
}

// Is makes errors.Is(err, ErrNoAcknowledgment) hold for every ConfigError
func (e *ConfigError) Is(target error) bool {
	return target == ErrNoAcknowledgment
}

func (e *ConfigError) Unwrap() error {
	return e.LastErr
}
