package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Generator abstracts the hosted generation API used by both cycles.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is a single-prompt generation call. A nil Schema requests free text.
type Request struct {
	Prompt string
	Schema *Schema
}

var (
	// ErrTransport wraps failures that happen before a response is received.
	ErrTransport = errors.New("transport error")
	// ErrMalformedResponse is returned when a success response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed generation response")
)

// GenericErrorMessage is used when an error body carries no readable message.
const GenericErrorMessage = "Unknown error"

// APIError is a non-success HTTP response from the generation API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation api status %d: %s", e.StatusCode, e.Message)
}

// NewAPIError builds an APIError, falling back to GenericErrorMessage.
func NewAPIError(status int, message string) *APIError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = GenericErrorMessage
	}
	return &APIError{StatusCode: status, Message: message}
}

// Transport wraps err as ErrTransport.
func Transport(err error) error {
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
