package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Grid/rule layer.
	ErrOutOfBounds = "E_OUT_OF_BOUNDS"
	ErrOccupied    = "E_OCCUPIED"
	ErrEmpty       = "E_EMPTY"
	ErrUnknownKind = "E_UNKNOWN_KIND"
	ErrRateLimit   = "E_RATE_LIMIT"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrOutOfBounds:     {},
	ErrOccupied:        {},
	ErrEmpty:           {},
	ErrUnknownKind:     {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
