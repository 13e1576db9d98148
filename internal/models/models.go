// Package models defines the core data structures for MindMate.
//
// It includes interaction records, risk assessments, interventions and the API
// response envelope, which are shared across modules.
package models

import (
	"errors"
)

// Validation constants for input validation
const (
	// MinMood is the lowest accepted mood rating
	MinMood = 1
	// MaxMood is the highest accepted mood rating
	MaxMood = 10
	// MaxNotesLength defines the maximum allowed length for mood notes and chat messages
	MaxNotesLength = 4096
	// MaxSelfieEmotions is the number of emotion labels retained per selfie
	MaxSelfieEmotions = 3
	// MaxUserIDLength bounds user identifiers accepted from callers
	MaxUserIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID          = errors.New("userId is required")
	ErrUserIDTooLong        = errors.New("userId exceeds maximum length")
	ErrUnknownRecordKind    = errors.New("unknown interaction record kind")
	ErrMissingTimestamp     = errors.New("timestamp is required")
	ErrInvalidMood          = errors.New("mood must be between 1 and 10")
	ErrTextTooLong          = errors.New("text exceeds maximum length")
	ErrEmptyMessage         = errors.New("message cannot be empty")
	ErrMissingPayload       = errors.New("record payload does not match its kind")
	ErrNoEmotions           = errors.New("selfie must carry at least one emotion label")
	ErrInvalidConfidence    = errors.New("emotion confidence must be between 0 and 100")
	ErrInvalidRiskLevel     = errors.New("invalid risk level")
	ErrEmptyInterventionID  = errors.New("intervention id is required")
	ErrNotFound             = errors.New("not found")
	ErrFeatureKeyCollision  = errors.New("feature key collision")
	ErrNoClassifierArtifact = errors.New("classifier artifact unavailable")
)

// ValidateUserID checks that a caller-supplied user identifier is usable.
func ValidateUserID(userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if len(userID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ErrorWithResult creates an error API response that still carries a result payload.
// The assessment endpoint uses it to return a safe default assessment on failure.
func ErrorWithResult(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Recorded creates a recorded API response.
func Recorded(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithResult(result).
		Build()
}
