package services

import "errors"

var (
	ErrParsingFailed    = errors.New("failed to parse file")
	ErrProcessingFailed = errors.New("failed to process data")

	ErrNotFound            = errors.New("record not found")
	ErrForbidden           = errors.New("not allowed to access this record")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("amount exceeds the available balance")
	ErrNotEligible         = errors.New("member is not eligible for this service")
	ErrInvalidState        = errors.New("operation not allowed in the current status")
	ErrDuplicatePeriod     = errors.New("a contribution for this period already exists")
	ErrMemberInactive      = errors.New("membership is not active")
	ErrAlreadyExists       = errors.New("record already exists")

	// ErrInvalidCredentials covers unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmailNotVerified   = errors.New("email address not verified")
)
