package extraction

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrMalformedResponse indicates the provider reply could not be parsed.
var ErrMalformedResponse = errors.New("extraction response malformed")
