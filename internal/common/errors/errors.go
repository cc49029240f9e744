// Package errors provides the standardized error taxonomy of the answering pipeline
// and its mapping onto BPMN errors for the Zeebe workers.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeOracleTimeout          ErrorCode = "ORACLE_TIMEOUT"
	ErrCodeOracleUnavailable      ErrorCode = "ORACLE_UNAVAILABLE"
	ErrCodeOracleMalformedOutput  ErrorCode = "ORACLE_MALFORMED_OUTPUT"
	ErrCodeContextAbsent          ErrorCode = "CONTEXT_ABSENT"
	ErrCodeValidationInconclusive ErrorCode = "VALIDATION_INCONCLUSIVE"

	ErrCodeInvalidQuestion     ErrorCode = "INVALID_QUESTION"
	ErrCodeDecisionStoreFailed ErrorCode = "DECISION_STORE_FAILED"
	ErrCodeContextStoreFailed  ErrorCode = "CONTEXT_STORE_FAILED"
	ErrCodeProcessingCancelled ErrorCode = "PROCESSING_CANCELLED"

	ErrCodeAnswerDeliveryFailed   ErrorCode = "ANSWER_DELIVERY_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError with the same code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrOracleTimeout          = &StandardError{Code: ErrCodeOracleTimeout}
	ErrOracleUnavailable      = &StandardError{Code: ErrCodeOracleUnavailable}
	ErrOracleMalformedOutput  = &StandardError{Code: ErrCodeOracleMalformedOutput}
	ErrDecisionStoreFailed    = &StandardError{Code: ErrCodeDecisionStoreFailed}
	ErrContextStoreFailed     = &StandardError{Code: ErrCodeContextStoreFailed}
	ErrProcessingCancelled    = &StandardError{Code: ErrCodeProcessingCancelled}
	ErrInvalidQuestion        = &StandardError{Code: ErrCodeInvalidQuestion}
	ErrAnswerDeliveryFailed   = &StandardError{Code: ErrCodeAnswerDeliveryFailed}
	ErrNotificationSendFailed = &StandardError{Code: ErrCodeNotificationSendFailed}
)

// CodeOf extracts the code of a StandardError anywhere in the chain.
func CodeOf(err error) (ErrorCode, bool) {
	for err != nil {
		if se, ok := err.(*StandardError); ok {
			return se.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewOracleTimeoutError is returned when an oracle call exceeds its per-call timeout on every attempt.
func NewOracleTimeoutError(stage string, attempts int) *StandardError {
	return newError(ErrCodeOracleTimeout, "Reasoning oracle timeout",
		fmt.Sprintf("stage: %s, attempts: %d", stage, attempts), true, nil)
}

// NewOracleUnavailableError wraps a transient oracle failure that survived all retries.
func NewOracleUnavailableError(stage string, err error) *StandardError {
	return newError(ErrCodeOracleUnavailable, "Reasoning oracle unavailable",
		fmt.Sprintf("stage: %s, error: %v", stage, err), true, err)
}

// NewOracleMalformedOutputError describes output missing required tags.
func NewOracleMalformedOutputError(stage string, missing []string) *StandardError {
	return newError(ErrCodeOracleMalformedOutput, "Reasoning oracle returned malformed output",
		fmt.Sprintf("stage: %s, missing: %s", stage, strings.Join(missing, ",")), false, nil)
}

// NewContextAbsentError is informational: absence lowers confidence, it never fails a question.
func NewContextAbsentError(productRef string) *StandardError {
	return newError(ErrCodeContextAbsent, "No product data available",
		fmt.Sprintf("productRef: %s", productRef), false, nil)
}

// NewValidationInconclusiveError is informational: it maps to a partial coherence penalty.
func NewValidationInconclusiveError(details string) *StandardError {
	return newError(ErrCodeValidationInconclusive, "Answer validation inconclusive", details, false, nil)
}

// NewInvalidQuestionError rejects job input that fails schema validation.
func NewInvalidQuestionError(details string) *StandardError {
	return newError(ErrCodeInvalidQuestion, "Invalid question payload", details, false, nil)
}

// NewDecisionStoreFailedError means idempotency could not be checked; the caller must requeue.
func NewDecisionStoreFailedError(op string, err error) *StandardError {
	return newError(ErrCodeDecisionStoreFailed, "Decision store error",
		fmt.Sprintf("op: %s, error: %v", op, err), true, err)
}

// NewContextStoreFailedError wraps a product source failure.
func NewContextStoreFailedError(source string, err error) *StandardError {
	return newError(ErrCodeContextStoreFailed, "Product context store error",
		fmt.Sprintf("source: %s, error: %v", source, err), true, err)
}

// NewProcessingCancelledError is returned when the context ends mid-pipeline; nothing is routed.
func NewProcessingCancelledError(stage string, err error) *StandardError {
	return newError(ErrCodeProcessingCancelled, "Question processing cancelled",
		fmt.Sprintf("stage: %s", stage), true, err)
}

// NewAnswerDeliveryFailedError wraps a marketplace post failure.
func NewAnswerDeliveryFailedError(questionID string, err error) *StandardError {
	return newError(ErrCodeAnswerDeliveryFailed, "Answer delivery failed",
		fmt.Sprintf("questionId: %s, error: %v", questionID, err), true, err)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal codes to the error codes modelled in the BPMN diagrams.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeOracleTimeout:          "ORACLE_TIMEOUT",
	ErrCodeOracleUnavailable:      "ORACLE_UNAVAILABLE",
	ErrCodeOracleMalformedOutput:  "ORACLE_MALFORMED_OUTPUT",
	ErrCodeInvalidQuestion:        "INVALID_QUESTION",
	ErrCodeDecisionStoreFailed:    "DECISION_STORE_FAILED",
	ErrCodeContextStoreFailed:     "CONTEXT_STORE_FAILED",
	ErrCodeProcessingCancelled:    "PROCESSING_CANCELLED",
	ErrCodeAnswerDeliveryFailed:   "ANSWER_DELIVERY_FAILED",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDecisionStoreFailed,
		ErrCodeContextStoreFailed,
		ErrCodeAnswerDeliveryFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeOracleTimeout,
		ErrCodeOracleUnavailable,
		ErrCodeProcessingCancelled:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "ORACLE"):
		return "ORACLE"
	case strings.Contains(codeStr, "CONTEXT"):
		return "CONTEXT"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "DECISION"):
		return "STORAGE"
	case strings.Contains(codeStr, "DELIVERY") || strings.Contains(codeStr, "NOTIFICATION"):
		return "DISPATCH"
	default:
		return "OTHER"
	}
}
