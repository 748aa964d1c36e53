package spanz

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine.
var (
	ErrUnsupportedFormat = errors.New("spanz: unsupported propagation format")
	ErrInvalidCarrier    = errors.New("spanz: invalid carrier")
	ErrNilSpanContext    = errors.New("spanz: nil span context")
)

// Deliberate is implemented by errors that listeners raise on purpose.
// The Recorder never swallows them.
type Deliberate interface {
	error
	Deliberate() bool
}

// ChaosError is a failure injected for fault-injection testing. It is tagged
// on spans like a real error but can be told apart with IsChaos.
type ChaosError struct {
	Type    string
	Message string
}

func (e *ChaosError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// Kind reports the configured error type; it becomes the error.kind tag.
func (e *ChaosError) Kind() string {
	if e.Type == "" {
		return "ChaosError"
	}
	return e.Type
}

// Deliberate marks the error as intentionally injected.
func (*ChaosError) Deliberate() bool { return true }

// SecurityError is raised when a blocking security listener rejects an
// external operation.
type SecurityError struct {
	ClassName     string
	OperationName string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("operation not allowed: %s %s", e.ClassName, e.OperationName)
}

// Kind returns the error.kind tag value.
func (*SecurityError) Kind() string { return "SecurityError" }

// Deliberate marks the error as a configured block.
func (*SecurityError) Deliberate() bool { return true }

// IsDeliberate reports whether err, or anything it wraps, was raised on purpose.
func IsDeliberate(err error) bool {
	var d Deliberate
	return errors.As(err, &d) && d.Deliberate()
}

// IsChaos reports whether err wraps a *ChaosError.
func IsChaos(err error) bool {
	var c *ChaosError
	return errors.As(err, &c)
}

// IsSecurity reports whether err wraps a *SecurityError.
func IsSecurity(err error) bool {
	var s *SecurityError
	return errors.As(err, &s)
}
