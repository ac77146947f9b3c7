// Package protocol defines the wire envelopes exchanged between client and
// server and the codec that maps them to line-delimited JSON.
package protocol

// ErrorCode is the closed set of numeric failure codes crossing the wire.
//
// Codes are partitioned into ranges:
//
//	0       no error
//	1–99    generic
//	100–199 protocol
//	200–299 room
//	300–399 game
type ErrorCode int

const (
	ErrNone               ErrorCode = 0
	ErrUnrecognizedType   ErrorCode = 1
	ErrMalformedEnvelope  ErrorCode = 101
	ErrNotInRoom          ErrorCode = 102
	ErrAlreadyInRoom      ErrorCode = 103
	ErrRoomFull           ErrorCode = 201
	ErrNicknameUsed       ErrorCode = 202
	ErrWrongPassword      ErrorCode = 203
	ErrRoomNotFound       ErrorCode = 204
	ErrRoomExists         ErrorCode = 205
	ErrWrongRoom          ErrorCode = 206
	ErrRoomNotCreated     ErrorCode = 207
	ErrRoomNotDeleted     ErrorCode = 208
	ErrCommandUnavailable ErrorCode = 301
	ErrCommandMissingArgs ErrorCode = 302
	ErrCharacterTaken     ErrorCode = 303
	ErrCharacterNotFound  ErrorCode = 304
	ErrNoSuchExit         ErrorCode = 310
	ErrLockedRoom         ErrorCode = 311
)

var errorMessages = map[ErrorCode]string{
	ErrNone:               "No error",
	ErrUnrecognizedType:   "Message type not recognized",
	ErrMalformedEnvelope:  "Envelope invalid or malformed",
	ErrNotInRoom:          "You are not in a room",
	ErrAlreadyInRoom:      "You are already in a room",
	ErrRoomFull:           "Room already full",
	ErrNicknameUsed:       "Nickname already used in this room",
	ErrWrongPassword:      "Wrong password",
	ErrRoomNotFound:       "Room not found",
	ErrRoomExists:         "Room already exists",
	ErrWrongRoom:          "Wrong room",
	ErrRoomNotCreated:     "Room not created",
	ErrRoomNotDeleted:     "Room not deleted",
	ErrCommandUnavailable: "Command not available",
	ErrCommandMissingArgs: "Missing command arguments",
	ErrCharacterTaken:     "Character not available",
	ErrCharacterNotFound:  "Character not found",
	ErrNoSuchExit:         "There is no way through there",
	ErrLockedRoom:         "The door is locked",
}

// Valid reports whether c is a defined error code.
func (c ErrorCode) Valid() bool {
	_, ok := errorMessages[c]
	return ok
}

// DefaultMessage returns the human-readable message shown to clients when
// the sender supplies none.
func (c ErrorCode) DefaultMessage() string {
	return errorMessages[c]
}
