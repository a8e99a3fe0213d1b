package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrStageNotFound is returned by the registry for indices outside the collecting stages.
var ErrStageNotFound = errors.New("stage not found")

// ErrAlreadyComplete is reported when input is submitted after the Terminal stage was reached.
var ErrAlreadyComplete = errors.New("pipeline already complete")

// ErrStageRegression is returned when a commit would move the stage index backwards.
var ErrStageRegression = errors.New("stage index cannot move backwards on commit")

// ErrRevisionConflict is returned when a concurrent commit changed the session first.
var ErrRevisionConflict = errors.New("session revision conflict")

// ErrMalformedOutput is returned by evaluators whose response cannot be decoded.
var ErrMalformedOutput = errors.New("malformed evaluator output")

// ValidationCode identifies a validation failure category.
type ValidationCode string

const (
	CodeMissingSelection ValidationCode = "MissingSelection"
	CodeUnknownOption    ValidationCode = "UnknownOption"
	CodeNotANumber       ValidationCode = "NotANumber"
	CodeOutOfBounds      ValidationCode = "OutOfBounds"
	CodeInvertedRange    ValidationCode = "InvertedRange"
	CodeInvalidInput     ValidationCode = "InvalidInput"
	CodeTerminalStage    ValidationCode = "TerminalStage"
)

// Sentinels usable with errors.Is against any *ValidationError of that code.
var (
	ErrMissingSelection = &ValidationError{Code: CodeMissingSelection}
	ErrUnknownOption    = &ValidationError{Code: CodeUnknownOption}
	ErrNotANumber       = &ValidationError{Code: CodeNotANumber}
	ErrOutOfBounds      = &ValidationError{Code: CodeOutOfBounds}
	ErrInvertedRange    = &ValidationError{Code: CodeInvertedRange}
	ErrInvalidInput     = &ValidationError{Code: CodeInvalidInput}
	ErrTerminalStage    = &ValidationError{Code: CodeTerminalStage}
)

// ValidationError describes why a submission was rejected. It never advances the stage.
type ValidationError struct {
	Code        ValidationCode `json:"code"`
	ParameterID string         `json:"parameter_id,omitempty"`
	Message     string         `json:"message,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any ValidationError with the same code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

// InvocationCode identifies an evaluator invocation failure.
type InvocationCode string

const (
	CodeEvaluatorUnavailable InvocationCode = "EvaluatorUnavailable"
	CodeEvaluatorTimeout     InvocationCode = "EvaluatorTimeout"
	CodeMalformedOutput      InvocationCode = "MalformedOutput"
)

var (
	ErrEvaluatorUnavailable = &InvocationError{Code: CodeEvaluatorUnavailable}
	ErrEvaluatorTimeout     = &InvocationError{Code: CodeEvaluatorTimeout}
	ErrEvaluatorMalformed   = &InvocationError{Code: CodeMalformedOutput}
)

// InvocationError describes a failed evaluator call.
type InvocationError struct {
	Code         InvocationCode `json:"code"`
	EvaluatorRef string         `json:"evaluator_ref,omitempty"`
	Err          error          `json:"-"`
}

func (e *InvocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Code, e.EvaluatorRef)
	}
	return fmt.Sprintf("%s (%s): %v", e.Code, e.EvaluatorRef, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Is matches any InvocationError with the same code.
func (e *InvocationError) Is(target error) bool {
	t, ok := target.(*InvocationError)
	return ok && t.Code == e.Code
}

// Retryable reports whether resubmitting the same input may succeed.
func (e *InvocationError) Retryable() bool {
	return e.Code == CodeEvaluatorTimeout
}
