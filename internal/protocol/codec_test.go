package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeTypeFieldFirst(t *testing.T) {
	raw, err := Encode(&JoinRoom{PlayerName: "a", RoomName: "lab", RoomPassword: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"join_room","player_name":"a","room_name":"lab","room_password":"x"}`, string(raw))
}

func TestEncodeEmptyPayload(t *testing.T) {
	raw, err := Encode(&GetRoomList{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"get_rooms"}`, string(raw))
}

func TestDecodeKnownTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Envelope
	}{
		{"create_room", `{"type":"create_room","room_name":"lab","room_password":""}`,
			&CreateRoom{RoomName: "lab"}},
		{"join_room", `{"type":"join_room","player_name":"a","room_name":"lab","room_password":"x"}`,
			&JoinRoom{PlayerName: "a", RoomName: "lab", RoomPassword: "x"}},
		{"error", `{"type":"error","error_code":204,"error_message":"Room not found"}`,
			&Error{Code: ErrRoomNotFound, Message: "Room not found"}},
		{"chat", `{"type":"chat_message","player_name":"a","message":"hi"}`,
			&ChatMessage{PlayerName: "a", Message: "hi"}},
		{"narrator", `{"type":"game_narrator","message":"The lobby is dark."}`,
			&Narrator{Message: "The lobby is dark."}},
		{"available", `{"type":"game_available_characters","characters":["venkman","spengler"]}`,
			&AvailableCharacters{Characters: []string{"venkman", "spengler"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"warp_core_breach"}`))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, ErrUnrecognizedType, decodeErr.Code)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"type":`},
		{"missing type", `{"room_name":"lab"}`},
		{"type not string", `{"type":12}`},
		{"extra field", `{"type":"get_rooms","bogus":1}`},
		{"missing required field", `{"type":"join_room","room_name":"lab"}`},
		{"wrong field type", `{"type":"chat_message","message":7}`},
		{"unknown error code", `{"type":"error","error_code":999,"error_message":"?"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, ErrMalformedEnvelope, decodeErr.Code)
		})
	}
}

func TestRoundTripCatalogue(t *testing.T) {
	envelopes := []Envelope{
		&Ok{Message: "done"},
		NewError(ErrRoomFull),
		&GetRoomList{},
		&GetRoomDetails{RoomName: "lab"},
		&CreateRoom{RoomName: "lab", RoomPassword: "x"},
		&JoinRoom{PlayerName: "a", RoomName: "lab", RoomPassword: "x"},
		&DisconnectRoom{RoomName: "lab"},
		&DeleteRoom{RoomName: "lab"},
		&RoomList{Rooms: []RoomListEntry{{RoomName: "lab", UserCount: 2}}},
		&RoomDetails{RoomName: "lab", UserCount: 1, Users: []string{"a"}},
		&RoomCreated{RoomName: "lab"},
		&RoomJoined{PlayerName: "a", RoomName: "lab"},
		&RoomDisconnected{RoomName: "lab"},
		&RoomDeleted{RoomName: "lab"},
		&ChatMessage{PlayerName: "a", Message: "hi"},
		&GetAvailableCharacters{},
		&SelectCharacter{PlayerName: "a", Character: "venkman"},
		&GameCommand{PlayerName: "a", Command: "look around"},
		&AvailableCharacters{Characters: []string{"venkman"}},
		&Narrator{Message: "It is quiet."},
		&Dialogue{Speaker: "Porter", Message: "Twelfth floor again?"},
	}
	for _, m := range envelopes {
		t.Run(m.Kind(), func(t *testing.T) {
			raw, err := Encode(m)
			require.NoError(t, err)
			got, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestPropertyRoundTripJoinRoom(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &JoinRoom{
			PlayerName:   rapid.StringMatching(`[a-zA-Z0-9_]{1,16}`).Draw(t, "player"),
			RoomName:     rapid.StringMatching(`[a-zA-Z0-9_]{1,32}`).Draw(t, "room"),
			RoomPassword: rapid.String().Draw(t, "password"),
		}
		raw, err := Encode(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if *got.(*JoinRoom) != *m {
			t.Fatalf("round trip mismatch: %+v != %+v", got, m)
		}
	})
}

func TestPropertyRoundTripChat(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &ChatMessage{
			PlayerName: rapid.String().Draw(t, "player"),
			Message:    rapid.StringN(1, 256, 256).Draw(t, "message"),
		}
		raw, err := Encode(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if !json.Valid(raw) {
			t.Fatalf("encode produced invalid JSON: %s", raw)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if *got.(*ChatMessage) != *m {
			t.Fatalf("round trip mismatch")
		}
	})
}

func TestErrorCodeRanges(t *testing.T) {
	for code := range errorMessages {
		c := int(code)
		inRange := c == 0 || (c >= 1 && c <= 99) || (c >= 100 && c <= 199) ||
			(c >= 200 && c <= 299) || (c >= 300 && c <= 399)
		assert.True(t, inRange, "code %d outside the defined ranges", c)
		assert.NotEmpty(t, code.DefaultMessage())
	}
}
