package protocol

const (
	// Protocol/transport validation.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknownChain = "E_UNKNOWN_CHAIN"
	ErrRateLimit    = "E_RATE_LIMIT"

	// Rule layer.
	ErrNotActive         = "E_NOT_ACTIVE"
	ErrTimeoutNotReached = "E_TIMEOUT_NOT_REACHED"
	ErrInvalidReveal     = "E_INVALID_REVEAL"
	ErrNotFound          = "E_NOT_FOUND"
	ErrConflict          = "E_CONFLICT"
	ErrForbidden         = "E_FORBIDDEN"
	ErrCapacity          = "E_CAPACITY"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:        {},
	ErrUnknownChain:      {},
	ErrRateLimit:         {},
	ErrNotActive:         {},
	ErrTimeoutNotReached: {},
	ErrInvalidReveal:     {},
	ErrNotFound:          {},
	ErrConflict:          {},
	ErrForbidden:         {},
	ErrCapacity:          {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
