package speech

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failure class of a generation request.
type ErrorCode string

const (
	ErrorCodeAuthentication    ErrorCode = "AUTHENTICATION"
	ErrorCodeGeneration        ErrorCode = "GENERATION"
	ErrorCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

// AuthenticationError is returned before any network use when no credential
// is available.
type AuthenticationError struct{}

func (e *AuthenticationError) Error() string {
	return "Please set your Gemini API key in Settings first."
}

// Code returns ErrorCodeAuthentication.
func (e *AuthenticationError) Code() ErrorCode { return ErrorCodeAuthentication }

// GenerationError is a failed provider call. StatusCode is zero when the
// request never produced a response.
type GenerationError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *GenerationError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("Gemini TTS request failed: %v", e.Cause)
	}
	return fmt.Sprintf("Gemini TTS error (%d): %s", e.StatusCode, e.Body)
}

// Unwrap returns the underlying transport error, if any.
func (e *GenerationError) Unwrap() error { return e.Cause }

// Code returns ErrorCodeGeneration.
func (e *GenerationError) Code() ErrorCode { return ErrorCodeGeneration }

// MalformedResponseError is a successful response without an audio payload.
type MalformedResponseError struct {
	Cause error
}

func (e *MalformedResponseError) Error() string {
	return "No audio data in Gemini response"
}

// Unwrap returns the decoding error, if any.
func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// Code returns ErrorCodeMalformedResponse.
func (e *MalformedResponseError) Code() ErrorCode { return ErrorCodeMalformedResponse }

// CodeOf returns the error code carried by err, or "" if none.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// IsAuthentication reports whether err is a missing credential failure.
func IsAuthentication(err error) bool {
	return CodeOf(err) == ErrorCodeAuthentication
}

// IsGeneration reports whether err is a provider failure, including
// responses with no usable audio.
func IsGeneration(err error) bool {
	code := CodeOf(err)
	return code == ErrorCodeGeneration || code == ErrorCodeMalformedResponse
}
