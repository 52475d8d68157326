package commentary

import (
	"context"
	"errors"

	"variance-backend/internal/llm"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotReady   = errors.New("identity not ready")
	ErrConfig     = errors.New("llm credential not configured")
	ErrFormat     = errors.New("invalid model output")
	ErrBusy       = errors.New("a request is already in progress")
)

// FormatError describes a generated payload of the wrong shape.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Kind classifies cycle errors.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotReady   Kind = "not_ready"
	KindConfig     Kind = "config"
	KindAPI        Kind = "api"
	KindFormat     Kind = "format"
	KindTransport  Kind = "transport"
	KindBusy       Kind = "busy"
	KindUnknown    Kind = "unknown"
)

// KindOf maps err onto the error taxonomy.
func KindOf(err error) Kind {
	var apiErr *llm.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.Is(err, ErrFormat), errors.Is(err, llm.ErrMalformedResponse):
		return KindFormat
	case errors.Is(err, llm.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransport
	default:
		return KindUnknown
	}
}

// Cycle names the operation an error came from.
type Cycle string

const (
	CycleExtract Cycle = "extract"
	CycleQuery   Cycle = "query"
)

const (
	MsgNoTranscript   = "Please paste a transcript first."
	MsgNotReady       = "Please wait… initializing."
	MsgMissingKey     = "Missing LLM API key. Define GEMINI_API_KEY (or OPENAI_API_KEY) in the environment."
	MsgEnterQuery     = "Please enter a query."
	MsgProcessFirst   = "Please process a transcript first."
	MsgNoAnswer       = "No answer returned."
	MsgBusy           = "Please wait for the current request to finish."
	extractFailPrefix = "Failed to process the transcript: "
	queryFailPrefix   = "Failed to get a response: "
	unreachableDetail = "could not reach the generation API"
	malformedDetail   = "malformed response from the generation API"
)

// UserMessage converts a cycle error into the text shown to the user.
func UserMessage(cycle Cycle, err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindBusy:
		return MsgBusy
	case KindValidation:
		return MsgNoTranscript
	case KindNotReady:
		return MsgNotReady
	case KindConfig:
		return MsgMissingKey
	}
	return failurePrefix(cycle) + failureDetail(err)
}

func failurePrefix(cycle Cycle) string {
	if cycle == CycleQuery {
		return queryFailPrefix
	}
	return extractFailPrefix
}

func failureDetail(err error) string {
	var apiErr *llm.APIError
	var formatErr *FormatError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.As(err, &formatErr):
		return formatErr.Reason
	case errors.Is(err, llm.ErrMalformedResponse):
		return malformedDetail
	case KindOf(err) == KindTransport:
		return unreachableDetail
	case err.Error() != "":
		return err.Error()
	default:
		return llm.GenericErrorMessage
	}
}
