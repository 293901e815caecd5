package glue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode categorizes glue errors.
type ErrorCode string

const (
	// ErrCodeUndefinedStep indicates no step definition matched a step.
	ErrCodeUndefinedStep ErrorCode = "UNDEFINED_STEP"

	// ErrCodeAmbiguousStep indicates several step definitions matched a step.
	ErrCodeAmbiguousStep ErrorCode = "AMBIGUOUS_STEP"

	// ErrCodeDuplicateStep indicates two step definitions share a pattern.
	ErrCodeDuplicateStep ErrorCode = "DUPLICATE_STEP"

	// ErrCodeTimeout indicates a hook or step body exceeded its timeout.
	ErrCodeTimeout ErrorCode = "HOOK_TIMEOUT"

	// ErrCodePending indicates a body is not implemented yet.
	ErrCodePending ErrorCode = "PENDING"

	// ErrCodeNoBackends indicates the backend provider yielded nothing.
	ErrCodeNoBackends ErrorCode = "NO_BACKENDS"

	// ErrCodePanic indicates a body panicked.
	ErrCodePanic ErrorCode = "PANIC"

	// ErrCodeFrozen indicates glue was registered after the registry was frozen.
	ErrCodeFrozen ErrorCode = "REGISTRY_FROZEN"
)

// ErrNoBackends is returned when no backend is available. It is an
// unrecoverable configuration error.
var ErrNoBackends = errors.New("NO_BACKENDS: no backends were found, register at least one backend")

// ErrPending marks a step or hook body as not implemented yet.
// Match with errors.Is; Pending builds a variant with a message.
var ErrPending = errors.New("PENDING: TODO: implement me")

// ErrFrozen is returned when glue is added to a frozen registry.
var ErrFrozen = errors.New("REGISTRY_FROZEN: glue cannot be added after loading")

// coded is implemented by every typed glue error.
type coded interface {
	Code() ErrorCode
}

// CodeOf returns the code of the first typed glue error in err's chain, or
// an empty code.
func CodeOf(err error) ErrorCode {
	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	switch {
	case errors.Is(err, ErrPending):
		return ErrCodePending
	case errors.Is(err, ErrNoBackends):
		return ErrCodeNoBackends
	case errors.Is(err, ErrFrozen):
		return ErrCodeFrozen
	}
	return ""
}

// UndefinedStepError reports a step with no matching definition. It carries
// one snippet per backend.
type UndefinedStepError struct {
	Text     string
	Snippets []string
}

// Code implements coded.
func (e *UndefinedStepError) Code() ErrorCode { return ErrCodeUndefinedStep }

// Error implements the error interface.
func (e *UndefinedStepError) Error() string {
	return fmt.Sprintf("%s: no step definition matches %q", e.Code(), e.Text)
}

// AmbiguousStepError reports a step matched by more than one definition.
type AmbiguousStepError struct {
	Text       string
	Candidates []Candidate
}

// Candidate describes one of several matching definitions.
type Candidate struct {
	Pattern  string
	Location string
}

// Code implements coded.
func (e *AmbiguousStepError) Code() ErrorCode { return ErrCodeAmbiguousStep }

// Error implements the error interface.
func (e *AmbiguousStepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %q matches %d step definitions:", e.Code(), e.Text, len(e.Candidates))
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "\n  %s in %s", c.Pattern, c.Location)
	}
	return b.String()
}

// DuplicateStepDefinitionError reports a pattern registered twice.
type DuplicateStepDefinitionError struct {
	Pattern  string
	Existing string
	Location string
}

// Code implements coded.
func (e *DuplicateStepDefinitionError) Code() ErrorCode { return ErrCodeDuplicateStep }

// Error implements the error interface.
func (e *DuplicateStepDefinitionError) Error() string {
	return fmt.Sprintf("%s: %q at %s is already defined at %s", e.Code(), e.Pattern, e.Location, e.Existing)
}

// TimeoutError reports a body that ran longer than its timeout.
type TimeoutError struct {
	Timeout time.Duration
}

// Code implements coded.
func (e *TimeoutError) Code() ErrorCode { return ErrCodeTimeout }

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Code(), e.Timeout)
}

// PendingError marks a body as pending with a message.
type PendingError struct {
	Message string
}

// Pending returns an error marking the calling body as pending.
func Pending(msg string) error {
	return &PendingError{Message: msg}
}

// Code implements coded.
func (e *PendingError) Code() ErrorCode { return ErrCodePending }

// Error implements the error interface.
func (e *PendingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code(), e.Message)
}

// Is makes errors.Is(err, ErrPending) hold for every PendingError.
func (e *PendingError) Is(target error) bool {
	return target == ErrPending
}

// PanicError wraps a value recovered from a panicking body.
type PanicError struct {
	Value any
	Stack []byte
}

// Code implements coded.
func (e *PanicError) Code() ErrorCode { return ErrCodePanic }

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code(), e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsUndefined returns true if err is an undefined step error.
// Uses errors.As to handle wrapped errors.
func IsUndefined(err error) bool {
	var ue *UndefinedStepError
	return errors.As(err, &ue)
}

// IsAmbiguous returns true if err is an ambiguous step error.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousStepError
	return errors.As(err, &ae)
}

// IsPending returns true if err marks a pending body.
func IsPending(err error) bool {
	return errors.Is(err, ErrPending)
}

// IsTimeout returns true if err is a timeout error.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
