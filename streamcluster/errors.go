package streamcluster

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the fixed conditions of spec.md §7.
var (
	ErrSourceUnreadable = errors.New("streamcluster: frame source unreadable or malformed")
	ErrShapeMismatch    = errors.New("streamcluster: frame shape mismatch")
	ErrAllocation       = errors.New("streamcluster: allocation failure")
	ErrSourceTimeout    = errors.New("streamcluster: frame source timed out")
	ErrInterrupted      = errors.New("streamcluster: run was cancelled")
	ErrMaxClusters      = errors.New("streamcluster: max cluster count reached")
)

// ErrorCode classifies a StreamClusterError for programmatic handling,
// modeled on libravdb/errors.go's ErrorCode.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeSource
	ErrCodeShapeMismatch
	ErrCodeAllocation
	ErrCodeTimeout
	ErrCodeInterrupted
	ErrCodeOverflow
)

// ErrorSeverity mirrors libravdb/errors.go's ErrorSeverity.
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// RecoveryAction mirrors libravdb/errors.go's RecoveryAction.
type RecoveryAction int

const (
	RecoveryNone RecoveryAction = iota
	RecoveryRetry
	RecoveryGracefulTermination
	RecoveryOverflowPolicy
)

func (r RecoveryAction) String() string {
	switch r {
	case RecoveryNone:
		return "NONE"
	case RecoveryRetry:
		return "RETRY"
	case RecoveryGracefulTermination:
		return "GRACEFUL_TERMINATION"
	case RecoveryOverflowPolicy:
		return "OVERFLOW_POLICY"
	default:
		return "UNKNOWN"
	}
}

// ErrorContext carries diagnostic context about where an error occurred,
// mirroring libravdb/errors.go's ErrorContext. RequestID is populated with a
// fresh UUID for each error (NewError), unlike the teacher's field of the
// same name, which was declared but never set.
type ErrorContext struct {
	Component string
	Operation string
	FrameID   int
	RequestID string
	Timestamp time.Time
	// Caller is set only for the fatal conditions of spec.md §7 (shape
	// mismatch, allocation failure) — the ones worth paying runtime.Caller's
	// cost for, mirroring the teacher's own stack-trace-on-severe-errors-only
	// gate in NewVectorDBErrorWithContext.
	Caller string
}

// StreamClusterError is the module's structured error type, modeled
// line-for-line on libravdb/errors.go's VectorDBError.
type StreamClusterError struct {
	Code           ErrorCode
	Message        string
	Severity       ErrorSeverity
	RecoveryAction RecoveryAction
	Context        *ErrorContext
	Cause          error
	Retryable      bool
	RetryCount     int
	MaxRetries     int
	Timestamp      time.Time
}

func (e *StreamClusterError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] streamcluster error %d: %s", e.Severity, e.Code, e.Message))
	if e.Context != nil && e.Context.Component != "" {
		parts = append(parts, fmt.Sprintf("component: %s", e.Context.Component))
	}
	if e.Context != nil && e.Context.Operation != "" {
		parts = append(parts, fmt.Sprintf("operation: %s", e.Context.Operation))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	if e.Context != nil && e.Context.Caller != "" {
		parts = append(parts, fmt.Sprintf("at: %s", e.Context.Caller))
	}
	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying cause error.
func (e *StreamClusterError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the error can still be retried.
func (e *StreamClusterError) IsRetryable() bool {
	return e.Retryable && e.RetryCount < e.MaxRetries
}

// NewError creates a structured error with a fresh request id.
func NewError(code ErrorCode, message string, cause error) *StreamClusterError {
	ctx := &ErrorContext{
		RequestID: uuid.NewString(),
		Timestamp: time.Now(),
	}
	if code == ErrCodeAllocation || code == ErrCodeShapeMismatch {
		ctx.Caller = captureCaller(2)
	}
	return &StreamClusterError{
		Code:           code,
		Message:        message,
		Severity:       SeverityError,
		RecoveryAction: RecoveryNone,
		Cause:          cause,
		MaxRetries:     3,
		Timestamp:      time.Now(),
		Context:        ctx,
	}
}

// WithComponent attaches component/operation context.
func (e *StreamClusterError) WithComponent(component, operation string) *StreamClusterError {
	if e.Context == nil {
		e.Context = &ErrorContext{RequestID: uuid.NewString(), Timestamp: time.Now()}
	}
	e.Context.Component = component
	e.Context.Operation = operation
	return e
}

// WithFrame attaches the frame index that triggered the error.
func (e *StreamClusterError) WithFrame(frameID int) *StreamClusterError {
	if e.Context == nil {
		e.Context = &ErrorContext{RequestID: uuid.NewString(), Timestamp: time.Now()}
	}
	e.Context.FrameID = frameID
	return e
}

// WithSeverity sets the severity level.
func (e *StreamClusterError) WithSeverity(s ErrorSeverity) *StreamClusterError {
	e.Severity = s
	return e
}

// WithRecovery sets the recommended recovery action.
func (e *StreamClusterError) WithRecovery(r RecoveryAction) *StreamClusterError {
	e.RecoveryAction = r
	return e
}

func captureCaller(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s (%s:%d)", name, file, line)
}
