package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related collector errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML or price parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeStorage represents store read/write errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeMatching represents product matching errors
	ErrorTypeMatching ErrorType = "matching"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// TrackerError represents a typed error carrying the retailer it relates to.
type TrackerError struct {
	Type     ErrorType
	Retailer string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *TrackerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Retailer, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Retailer, e.Message)
}

// Unwrap returns the underlying error
func (e *TrackerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if retrying the operation can succeed.
func (e *TrackerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeStorage:
		return true
	default:
		return false
	}
}

// New creates a new TrackerError
func New(errType ErrorType, retailer, message string, err error) *TrackerError {
	return &TrackerError{
		Type:     errType,
		Retailer: retailer,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(retailer, message string, err error) *TrackerError {
	return New(ErrorTypeNetwork, retailer, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(retailer, message string, err error) *TrackerError {
	return New(ErrorTypeParsing, retailer, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(retailer string, duration time.Duration) *TrackerError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, retailer, message, nil)
}

// NewStorage creates a new storage error
func NewStorage(message string, err error) *TrackerError {
	return New(ErrorTypeStorage, "", message, err)
}

// NewMatching creates a new matching error
func NewMatching(retailer, message string) *TrackerError {
	return New(ErrorTypeMatching, retailer, message, nil)
}

// NewValidation creates a new validation error
func NewValidation(message string) *TrackerError {
	return New(ErrorTypeValidation, "", message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *TrackerError {
	return New(ErrorTypeConfiguration, "", message, err)
}
