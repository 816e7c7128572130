package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnknownProject   = errors.New("unknown project code")
	ErrClassification   = errors.New("classification failed")
	ErrInternalSender   = errors.New("internal-domain sender")
	ErrInvalidThreshold = errors.New("threshold must be in [0,1]")
)
