package fanout

import "errors"

var (
	ErrHubClosed      = errors.New("fanout: hub is closed")
	ErrConnIDRequired = errors.New("fanout: connection id is required")
	ErrConnExists     = errors.New("fanout: connection already exists")
	ErrConnNotFound   = errors.New("fanout: connection not found")
	ErrRoomRequired   = errors.New("fanout: room is required")
	ErrKindRequired   = errors.New("fanout: event kind is required")
	ErrInvalidPayload = errors.New("fanout: payload cannot be encoded")
	ErrInvalidEvent   = errors.New("fanout: invalid event")

	// Gateway errors, sent back to clients in error frames
	ErrInvalidCommand = errors.New("fanout: invalid command")
	ErrUnknownAction  = errors.New("fanout: unknown action")
	ErrForbidden      = errors.New("fanout: not allowed to join room")
)
