package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes follow the "<MODULE>_<NNN>" convention.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeQueueError         ErrorCode = "COMMON_016"
)

// Aliases kept short for call sites in repositories and handlers.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("")
	CodeOK           = ErrorCode("OK")
)

// Intake pipeline error codes.
const (
	ErrCodeUnsupportedMime  ErrorCode = "INTAKE_001"
	ErrCodeDecodeFailed     ErrorCode = "INTAKE_002"
	ErrCodeNoExtractedText  ErrorCode = "INTAKE_003"
	ErrCodeLockHeld         ErrorCode = "INTAKE_004"
	ErrCodeStageFailed      ErrorCode = "INTAKE_005"
	ErrCodeLLMCallFailed    ErrorCode = "INTAKE_006"
	ErrCodeLLMResponseParse ErrorCode = "INTAKE_007"
	ErrCodeEnqueueFailed    ErrorCode = "INTAKE_008"
	ErrCodeJobNotFound      ErrorCode = "INTAKE_009"
)

// Report and medication persistence error codes.
const (
	ErrCodeReportNotFound       ErrorCode = "REPORT_001"
	ErrCodeReportDuplicate      ErrorCode = "REPORT_002"
	ErrCodeMedicationNotFound   ErrorCode = "REPORT_003"
	ErrCodeMedicationDuplicate  ErrorCode = "REPORT_004"
	ErrCodeEmbeddingFailed      ErrorCode = "REPORT_005"
	ErrCodeSearchIndexFailed    ErrorCode = "REPORT_006"
	ErrCodeEmbeddingDimMismatch ErrorCode = "REPORT_007"
)

// ErrorCodeHTTPStatus maps each code to the HTTP status the API layer returns.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeQueueError:         http.StatusServiceUnavailable,

	ErrCodeUnsupportedMime:  http.StatusUnsupportedMediaType,
	ErrCodeDecodeFailed:     http.StatusBadRequest,
	ErrCodeNoExtractedText:  http.StatusUnprocessableEntity,
	ErrCodeLockHeld:         http.StatusConflict,
	ErrCodeStageFailed:      http.StatusInternalServerError,
	ErrCodeLLMCallFailed:    http.StatusBadGateway,
	ErrCodeLLMResponseParse: http.StatusBadGateway,
	ErrCodeEnqueueFailed:    http.StatusServiceUnavailable,
	ErrCodeJobNotFound:      http.StatusNotFound,

	ErrCodeReportNotFound:       http.StatusNotFound,
	ErrCodeReportDuplicate:      http.StatusConflict,
	ErrCodeMedicationNotFound:   http.StatusNotFound,
	ErrCodeMedicationDuplicate:  http.StatusConflict,
	ErrCodeEmbeddingFailed:      http.StatusBadGateway,
	ErrCodeSearchIndexFailed:    http.StatusInternalServerError,
	ErrCodeEmbeddingDimMismatch: http.StatusInternalServerError,
}

// ErrorCodeMessage holds the default user-facing message per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "operation timed out",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeQueueError:         "queue error",

	ErrCodeUnsupportedMime:  "unsupported mime type",
	ErrCodeDecodeFailed:     "failed to decode file content",
	ErrCodeNoExtractedText:  "no extractable text found",
	ErrCodeLockHeld:         "document is already being processed",
	ErrCodeStageFailed:      "pipeline stage failed",
	ErrCodeLLMCallFailed:    "language model call failed",
	ErrCodeLLMResponseParse: "language model response could not be parsed",
	ErrCodeEnqueueFailed:    "failed to enqueue job",
	ErrCodeJobNotFound:      "job not found",

	ErrCodeReportNotFound:       "report not found",
	ErrCodeReportDuplicate:      "report already exists",
	ErrCodeMedicationNotFound:   "medication not found",
	ErrCodeMedicationDuplicate:  "medication already exists",
	ErrCodeEmbeddingFailed:      "embedding generation failed",
	ErrCodeSearchIndexFailed:    "search indexing failed",
	ErrCodeEmbeddingDimMismatch: "embedding dimension mismatch",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
