package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrParse
	ErrAPI
	ErrValidation
	ErrConfig
	ErrNetwork
	ErrTranslation
	ErrStorage
	ErrCancelled
	ErrIncomplete
	ErrUnknown
)

var (
	// ErrRunCancelled is wrapped by the error Run returns after cancellation.
	ErrRunCancelled = errors.New("translation run cancelled")
	// ErrRunIncomplete means some batches could not be stored.
	ErrRunIncomplete = errors.New("translation run incomplete")
)

// TransError is an error with a category, optional key/value context and a
// cause.
type TransError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *TransError {
	return &TransError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *TransError {
	return &TransError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *TransError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *TransError) Unwrap() error {
	return e.Cause
}

func (e *TransError) WithContext(key string, value any) *TransError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrParse:
		return "Parse"
	case ErrAPI:
		return "API"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	case ErrNetwork:
		return "Network"
	case ErrTranslation:
		return "Translation"
	case ErrStorage:
		return "Storage"
	case ErrCancelled:
		return "Cancelled"
	case ErrIncomplete:
		return "Incomplete"
	default:
		return "Unknown"
	}
}

// Advice returns a hint for the user about how to resolve err.
func Advice(err error) string {
	var transErr *TransError
	if !errors.As(err, &transErr) {
		return "Please review detailed error information and check relevant configuration and files"
	}

	switch transErr.Type {
	case ErrFileNotFound:
		return "Please check that the file path is correct and ensure the file exists with read permissions"
	case ErrFileRead:
		return "Please check file permissions and verify the file is a readable SRT document"
	case ErrFileWrite, ErrStorage:
		return "Please ensure the output directory exists, has write permissions and enough free space"
	case ErrParse:
		return "Please verify the file is a valid SRT subtitle with numbered cues and time ranges"
	case ErrAPI:
		return "Please check the API key, the model name and the provider's service status"
	case ErrNetwork:
		return "Please check network connectivity to the API endpoint"
	case ErrValidation:
		return "Please verify input parameters: batch size > 0, context size >= 0, threads >= 1, start <= end"
	case ErrConfig:
		return "Please check the configuration file and environment variables"
	case ErrTranslation:
		return "The model kept failing on this content; try a smaller batch size or another model"
	case ErrCancelled:
		return "Run the same command again to resume from the completed batches"
	case ErrIncomplete:
		return "Some batches could not be saved; fix the storage problem and run again to resume"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

// LogError logs err together with advice for the user.
func LogError(err error) {
	if err == nil {
		return
	}
	log.Error("%v", err)
	log.Error("advice: %s", Advice(err))
}

func IsErrorType(err error, errorType ErrorType) bool {
	var transErr *TransError
	if errors.As(err, &transErr) {
		return transErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *TransError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and turns a panic into an error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
