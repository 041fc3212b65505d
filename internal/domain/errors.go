package domain

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound means the account does not appear in the transaction universe.
var ErrAccountNotFound = errors.New("account not found")

// AssessmentError wraps a scoring failure with the account it concerns.
type AssessmentError struct {
	AccountID string
	Err       error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assess %s: %v", e.AccountID, e.Err)
}

func (e *AssessmentError) Unwrap() error {
	return e.Err
}
