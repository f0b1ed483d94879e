package repositories

import "fmt"

// ReviewErrorCode enumerates repository error causes for review operations.
type ReviewErrorCode string

const (
	// ReviewErrorUnknown represents an unspecified failure.
	ReviewErrorUnknown ReviewErrorCode = "review_unknown"
	// ReviewErrorDuplicate indicates a review already exists for the purchase.
	ReviewErrorDuplicate ReviewErrorCode = "review_duplicate"
	// ReviewErrorAlreadyVoted indicates the user already cast a helpful vote.
	ReviewErrorAlreadyVoted ReviewErrorCode = "review_already_voted"
	// ReviewErrorNotFound indicates the review document is missing.
	ReviewErrorNotFound ReviewErrorCode = "review_not_found"
)

// ReviewError wraps review-specific failures with machine readable codes.
type ReviewError struct {
	Op      string
	Code    ReviewErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ReviewError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *ReviewError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewReviewError constructs a typed review error.
func NewReviewError(code ReviewErrorCode, message string, err error) *ReviewError {
	if message == "" {
		message = string(code)
	}
	return &ReviewError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
