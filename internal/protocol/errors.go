package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Join rejection.
	ErrNameTaken  = "E_NAME_TAKEN"
	ErrServerFull = "E_SERVER_FULL"
	ErrNoRoom     = "E_NO_ROOM"

	// Direction layer.
	ErrBadDirection = "E_BAD_DIRECTION"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrNameTaken:       {},
	ErrServerFull:      {},
	ErrNoRoom:          {},
	ErrBadDirection:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
