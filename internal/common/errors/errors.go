// Package errors provides standardized error handling for BPMN workflow integration.
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
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeStatusUpdateFailed  ErrorCode = "STATUS_UPDATE_FAILED"

	ErrCodeStepWriteFailed  ErrorCode = "STEP_WRITE_FAILED"
	ErrCodeStepDataInvalid  ErrorCode = "STEP_DATA_INVALID"
	ErrCodeUnknownStepKey   ErrorCode = "UNKNOWN_STEP_KEY"
	ErrCodeRederiveFailed   ErrorCode = "REDERIVE_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeDatabaseConnFail ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryFailed      ErrorCode = "QUERY_EXECUTION_FAILED"

	ErrCodePaymentCreateFailed    ErrorCode = "PAYMENT_CREATE_FAILED"
	ErrCodePaymentNotFound        ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentProcessorFailed ErrorCode = "PAYMENT_PROCESSOR_FAILED"
	ErrCodeReceiptRenderFailed    ErrorCode = "RECEIPT_RENDER_FAILED"

	ErrCodeDocumentUploadFailed ErrorCode = "DOCUMENT_UPLOAD_FAILED"
	ErrCodeSignedURLFailed      ErrorCode = "SIGNED_URL_FAILED"

	ErrCodeAccountSaveFailed ErrorCode = "ACCOUNT_SAVE_FAILED"
	ErrCodeAccountNotFound   ErrorCode = "ACCOUNT_NOT_FOUND"

	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeIndexNotFound     ErrorCode = "INDEX_NOT_FOUND"

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
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// UserMessage is the notice shown to the portal user; it carries the
// underlying message when there is one.
func (e *StandardError) UserMessage() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
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

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewApplicationNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found",
		fmt.Sprintf("applicationId: %s", applicationID), false)
}

func NewStatusUpdateFailedError(err error) *StandardError {
	return newError(ErrCodeStatusUpdateFailed, "Failed to update application status", err.Error(), true)
}

// NewStepWriteFailedError wraps a failed timeline step write.
func NewStepWriteFailedError(stepKey string, err error) *StandardError {
	e := newError(ErrCodeStepWriteFailed, "Failed to save timeline step", err.Error(), true)
	e.Metadata = map[string]interface{}{"stepKey": stepKey}
	return e
}

func NewStepDataInvalidError(stepKey, details string) *StandardError {
	e := newError(ErrCodeStepDataInvalid, "Timeline step data is invalid", details, false)
	e.Metadata = map[string]interface{}{"stepKey": stepKey}
	return e
}

func NewUnknownStepKeyError(appType, stepKey string) *StandardError {
	return newError(ErrCodeUnknownStepKey, "Unknown timeline step",
		fmt.Sprintf("applicationType: %s, stepKey: %s", appType, stepKey), false)
}

func NewRederiveFailedError(err error) *StandardError {
	return newError(ErrCodeRederiveFailed, "Failed to refresh timeline progress", err.Error(), true)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnFail, "Database connection error", err.Error(), true)
}

func NewQueryExecutionFailedError(queryName string, err error) *StandardError {
	return newError(ErrCodeQueryFailed, "Database query execution error",
		fmt.Sprintf("query: %s, error: %s", queryName, err.Error()), true)
}

func NewPaymentCreateFailedError(err error) *StandardError {
	return newError(ErrCodePaymentCreateFailed, "Failed to create payment", err.Error(), true)
}

func NewPaymentNotFoundError(ref string) *StandardError {
	return newError(ErrCodePaymentNotFound, "Payment not found", fmt.Sprintf("ref: %s", ref), false)
}

func NewPaymentProcessorFailedError(err error) *StandardError {
	return newError(ErrCodePaymentProcessorFailed, "Payment processor error", err.Error(), true)
}

// WithMetadata adds one metadata entry and returns e.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func NewReceiptRenderFailedError(err error) *StandardError {
	return newError(ErrCodeReceiptRenderFailed, "Failed to generate receipt", err.Error(), false)
}

func NewDocumentUploadFailedError(path string, err error) *StandardError {
	return newError(ErrCodeDocumentUploadFailed, "Failed to upload document",
		fmt.Sprintf("path: %s, error: %s", path, err.Error()), true)
}

func NewSignedURLFailedError(path string, err error) *StandardError {
	return newError(ErrCodeSignedURLFailed, "Failed to issue document link",
		fmt.Sprintf("path: %s, error: %s", path, err.Error()), true)
}

func NewAccountSaveFailedError(err error) *StandardError {
	return newError(ErrCodeAccountSaveFailed, "Failed to save processing account", err.Error(), true)
}

func NewAccountNotFoundError(accountID string) *StandardError {
	return newError(ErrCodeAccountNotFound, "Processing account not found",
		fmt.Sprintf("accountId: %s", accountID), false)
}

func NewSearchQueryFailedError(err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error", err.Error(), true)
}

func NewIndexNotFoundError(indexName string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Elasticsearch index not found",
		fmt.Sprintf("indexName: %s", indexName), false)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStepWriteFailed,
		ErrCodeRederiveFailed,
		ErrCodeStatusUpdateFailed,
		ErrCodeDatabaseConnFail,
		ErrCodeQueryFailed,
		ErrCodePaymentCreateFailed,
		ErrCodeDocumentUploadFailed,
		ErrCodeAccountSaveFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeSearchQueryFailed:
		return 3

	case ErrCodePaymentProcessorFailed,
		ErrCodeSignedURLFailed:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	// metadata becomes process variables, so a retried job sees it
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.UserMessage(),
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "STEP") || codeStr == string(ErrCodeUnknownStepKey) || codeStr == string(ErrCodeRederiveFailed):
		return "TIMELINE"
	case strings.HasPrefix(codeStr, "PAYMENT") || strings.HasPrefix(codeStr, "RECEIPT"):
		return "PAYMENT"
	case strings.HasPrefix(codeStr, "DOCUMENT") || strings.HasPrefix(codeStr, "SIGNED_URL"):
		return "STORAGE"
	case strings.HasPrefix(codeStr, "ACCOUNT"):
		return "ACCOUNT"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY_EXECUTION"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
