package srv

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrNotTimekeeper     = errors.New("not the room timekeeper")
	ErrUnresolvedWallet  = errors.New("winner wallet unresolved")
	ErrNotAssigned       = errors.New("connection not assigned to a room")
	ErrUnknownLevel      = errors.New("unknown level")
)
