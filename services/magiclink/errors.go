package magiclink

import (
	"errors"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrDeliveryFailure       = errors.New("magic link delivery failed")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired magic link")
	ErrNotFound              = errors.New("not found")
)

type Reason string

const (
	ReasonNoRecord Reason = "no_record"
	ReasonMismatch Reason = "mismatch"
	ReasonExpired  Reason = "expired"
	ReasonUsed     Reason = "used"
	ReasonRace     Reason = "race"
	ReasonInactive Reason = "inactive_account"
)

type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return ErrInvalidOrExpiredToken.Error()
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrInvalidOrExpiredToken
}

func reject(reason Reason) error {
	return &RejectionError{Reason: reason}
}

func RejectionReason(err error) (Reason, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason, true
	}
	return "", false
}
