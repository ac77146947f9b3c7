package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeError is returned when a frame cannot be turned into an Envelope.
// Code is ErrUnrecognizedType for unknown type keys and ErrMalformedEnvelope
// for everything else (bad JSON, extra fields, failed field validation).
type DecodeError struct {
	Code   ErrorCode
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s (code %d)", e.Reason, int(e.Code))
}

// registry maps a wire type key to a constructor for the concrete envelope.
// Closed by design: decoding resolves through this table only, so decode
// failures stay typed results instead of reflection panics.
var registry = map[string]func() Envelope{
	KindOk:                     func() Envelope { return &Ok{} },
	KindError:                  func() Envelope { return &Error{} },
	KindGetRoomList:            func() Envelope { return &GetRoomList{} },
	KindGetRoomDetails:         func() Envelope { return &GetRoomDetails{} },
	KindCreateRoom:             func() Envelope { return &CreateRoom{} },
	KindJoinRoom:               func() Envelope { return &JoinRoom{} },
	KindDisconnectRoom:         func() Envelope { return &DisconnectRoom{} },
	KindDeleteRoom:             func() Envelope { return &DeleteRoom{} },
	KindRoomList:               func() Envelope { return &RoomList{} },
	KindRoomDetails:            func() Envelope { return &RoomDetails{} },
	KindRoomCreated:            func() Envelope { return &RoomCreated{} },
	KindRoomJoined:             func() Envelope { return &RoomJoined{} },
	KindRoomDisconnected:       func() Envelope { return &RoomDisconnected{} },
	KindRoomDeleted:            func() Envelope { return &RoomDeleted{} },
	KindChatMessage:            func() Envelope { return &ChatMessage{} },
	KindGetAvailableCharacters: func() Envelope { return &GetAvailableCharacters{} },
	KindSelectCharacter:        func() Envelope { return &SelectCharacter{} },
	KindGameCommand:            func() Envelope { return &GameCommand{} },
	KindAvailableCharacters:    func() Envelope { return &AvailableCharacters{} },
	KindNarrator:               func() Envelope { return &Narrator{} },
	KindDialogue:               func() Envelope { return &Dialogue{} },
}

// Encode serializes an envelope to its wire form: a flat JSON object with
// the "type" key first, followed by the type-specific fields.
//
// Postcondition: Decode(Encode(m)) reproduces m for every valid envelope.
func Encode(m Envelope) ([]byte, error) {
	if _, ok := registry[m.Kind()]; !ok {
		return nil, fmt.Errorf("encode: unregistered envelope kind %q", m.Kind())
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(m.Kind()) + 12)
	buf.WriteString(`{"type":`)
	key, _ := json.Marshal(m.Kind())
	buf.Write(key)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
		buf.Write(body[1 : len(body)-1])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses one wire frame into a typed envelope.
//
// Unknown "type" values fail with code ErrUnrecognizedType. A recognized
// type whose payload carries unexpected fields, or whose required fields
// fail validation, fails with code ErrMalformedEnvelope.
func Decode(frame []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, &DecodeError{Code: ErrMalformedEnvelope, Reason: err.Error()}
	}

	rawKind, ok := fields["type"]
	if !ok {
		return nil, &DecodeError{Code: ErrMalformedEnvelope, Reason: "missing type field"}
	}
	var kind string
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return nil, &DecodeError{Code: ErrMalformedEnvelope, Reason: "type field is not a string"}
	}

	newEnvelope, ok := registry[kind]
	if !ok {
		return nil, &DecodeError{Code: ErrUnrecognizedType, Reason: fmt.Sprintf("unknown type %q", kind)}
	}

	// Strict decode of the remaining fields: anything the concrete shape
	// does not declare is a malformed envelope.
	delete(fields, "type")
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, &DecodeError{Code: ErrMalformedEnvelope, Reason: err.Error()}
	}

	m := newEnvelope()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		return nil, &DecodeError{Code: ErrMalformedEnvelope, Reason: fmt.Sprintf("%s: %v", kind, err)}
	}
	if err := m.validate(); err != nil {
		return nil, &DecodeError{Code: ErrMalformedEnvelope, Reason: fmt.Sprintf("%s: %v", kind, err)}
	}
	return m, nil
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("field %s must not be empty", name)
	}
	return nil
}

func errFieldf(name, format string, args ...any) error {
	return fmt.Errorf("field %s: %s", name, fmt.Sprintf(format, args...))
}
