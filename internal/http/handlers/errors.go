// Package handlers defines the stable error codes returned in the API error
// envelope. Clients branch on these codes, not on message text.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"

	// Domain-specific:
	ErrCodeValidation          = "validation_failed"
	ErrCodeInsufficientCredits = "insufficient_credits"
	ErrCodeUnsupportedMedia    = "unsupported_media"
	ErrCodeSubmitFailed        = "submit_failed"
	ErrCodeUploadFailed        = "upload_failed"
	ErrCodeCreditsUnavailable  = "credits_unavailable"
)
