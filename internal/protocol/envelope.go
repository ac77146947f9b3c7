package protocol

// Envelope kind keys. The key is the value of the wire "type" field and
// resolves through the codec registry to a concrete message shape.
const (
	KindOk                     = "ok"
	KindError                  = "error"
	KindGetRoomList            = "get_rooms"
	KindGetRoomDetails         = "get_room"
	KindCreateRoom             = "create_room"
	KindJoinRoom               = "join_room"
	KindDisconnectRoom         = "disconnect_room"
	KindDeleteRoom             = "delete_room"
	KindRoomList               = "room_list"
	KindRoomDetails            = "room_details"
	KindRoomCreated            = "room_created"
	KindRoomJoined             = "room_joined"
	KindRoomDisconnected       = "room_disconnected"
	KindRoomDeleted            = "room_deleted"
	KindChatMessage            = "chat_message"
	KindGetAvailableCharacters = "game_get_available_characters"
	KindSelectCharacter        = "game_select_character"
	KindGameCommand            = "game_command"
	KindAvailableCharacters    = "game_available_characters"
	KindNarrator               = "game_narrator"
	KindDialogue               = "game_dialogue"
)

// Envelope is one typed message exchanged between client and server.
// Envelopes are immutable once constructed; one envelope corresponds to one
// logical message on the wire.
type Envelope interface {
	// Kind returns the registry key written to the wire "type" field.
	Kind() string
	// validate checks the type-specific field constraints after decoding.
	validate() error
}

/* ---------------------------- generic replies --------------------------- */

// Ok acknowledges a request that produces no other payload.
type Ok struct {
	Message string `json:"ok_message"`
}

func (*Ok) Kind() string    { return KindOk }
func (*Ok) validate() error { return nil }

// Error reports a failure with a code from the closed ErrorCode set.
type Error struct {
	Code    ErrorCode `json:"error_code"`
	Message string    `json:"error_message"`
}

func (*Error) Kind() string { return KindError }

func (e *Error) validate() error {
	if !e.Code.Valid() {
		return errFieldf("error_code", "unknown code %d", int(e.Code))
	}
	return nil
}

// NewError builds an Error envelope carrying the code's default message.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: code.DefaultMessage()}
}

// NewErrorMessage builds an Error envelope with a custom message.
func NewErrorMessage(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

/* ------------------------------ lobby / room ----------------------------- */

// GetRoomList asks for the current room roster. Carries no fields.
type GetRoomList struct{}

func (*GetRoomList) Kind() string    { return KindGetRoomList }
func (*GetRoomList) validate() error { return nil }

// GetRoomDetails asks for one room's membership snapshot.
type GetRoomDetails struct {
	RoomName string `json:"room_name"`
}

func (*GetRoomDetails) Kind() string { return KindGetRoomDetails }

func (m *GetRoomDetails) validate() error { return requireField("room_name", m.RoomName) }

// CreateRoom requests creation of a room. The password may be empty.
type CreateRoom struct {
	RoomName     string `json:"room_name"`
	RoomPassword string `json:"room_password"`
}

func (*CreateRoom) Kind() string { return KindCreateRoom }

func (m *CreateRoom) validate() error { return requireField("room_name", m.RoomName) }

// JoinRoom requests membership in a room under a nickname.
type JoinRoom struct {
	PlayerName   string `json:"player_name"`
	RoomName     string `json:"room_name"`
	RoomPassword string `json:"room_password"`
}

func (*JoinRoom) Kind() string { return KindJoinRoom }

func (m *JoinRoom) validate() error {
	if err := requireField("player_name", m.PlayerName); err != nil {
		return err
	}
	return requireField("room_name", m.RoomName)
}

// DisconnectRoom requests an orderly leave from the named room.
type DisconnectRoom struct {
	RoomName string `json:"room_name"`
}

func (*DisconnectRoom) Kind() string { return KindDisconnectRoom }

func (m *DisconnectRoom) validate() error { return requireField("room_name", m.RoomName) }

// DeleteRoom requests deletion of a room, disconnecting all its members.
type DeleteRoom struct {
	RoomName string `json:"room_name"`
}

func (*DeleteRoom) Kind() string { return KindDeleteRoom }

func (m *DeleteRoom) validate() error { return requireField("room_name", m.RoomName) }

// RoomListEntry is one row of a RoomList reply.
type RoomListEntry struct {
	RoomName  string `json:"room_name"`
	UserCount int    `json:"user_count"`
}

// RoomList is the roster of rooms currently registered with the lobby.
type RoomList struct {
	Rooms []RoomListEntry `json:"rooms"`
}

func (*RoomList) Kind() string    { return KindRoomList }
func (*RoomList) validate() error { return nil }

// RoomDetails is a membership snapshot for one room.
type RoomDetails struct {
	RoomName  string   `json:"room_name"`
	UserCount int      `json:"user_count"`
	Users     []string `json:"users"`
}

func (*RoomDetails) Kind() string { return KindRoomDetails }

func (m *RoomDetails) validate() error { return requireField("room_name", m.RoomName) }

// RoomCreated confirms a successful CreateRoom.
type RoomCreated struct {
	RoomName string `json:"room_name"`
}

func (*RoomCreated) Kind() string { return KindRoomCreated }

func (m *RoomCreated) validate() error { return requireField("room_name", m.RoomName) }

// RoomJoined confirms a successful JoinRoom.
type RoomJoined struct {
	PlayerName string `json:"player_name"`
	RoomName   string `json:"room_name"`
}

func (*RoomJoined) Kind() string { return KindRoomJoined }

func (m *RoomJoined) validate() error { return requireField("room_name", m.RoomName) }

// RoomDisconnected confirms that the receiver left the named room and is
// back in the lobby.
type RoomDisconnected struct {
	RoomName string `json:"room_name"`
}

func (*RoomDisconnected) Kind() string { return KindRoomDisconnected }

func (m *RoomDisconnected) validate() error { return requireField("room_name", m.RoomName) }

// RoomDeleted notifies members that their room was deleted.
type RoomDeleted struct {
	RoomName string `json:"room_name"`
}

func (*RoomDeleted) Kind() string { return KindRoomDeleted }

func (m *RoomDeleted) validate() error { return requireField("room_name", m.RoomName) }

// ChatMessage is a free-form message relayed to every member of a room.
// The server stamps PlayerName with the sender's nickname before relaying.
type ChatMessage struct {
	PlayerName string `json:"player_name"`
	Message    string `json:"message"`
}

func (*ChatMessage) Kind() string { return KindChatMessage }

func (m *ChatMessage) validate() error { return requireField("message", m.Message) }

/* --------------------------------- game ---------------------------------- */

// GetAvailableCharacters asks which characters are not yet bound to a
// player. Carries no fields.
type GetAvailableCharacters struct{}

func (*GetAvailableCharacters) Kind() string    { return KindGetAvailableCharacters }
func (*GetAvailableCharacters) validate() error { return nil }

// SelectCharacter binds the sender to a character of the room's game.
// The server stamps PlayerName with the sender's nickname.
type SelectCharacter struct {
	PlayerName string `json:"player_name"`
	Character  string `json:"character"`
}

func (*SelectCharacter) Kind() string { return KindSelectCharacter }

func (m *SelectCharacter) validate() error { return requireField("character", m.Character) }

// GameCommand carries raw command text for the room's command engine.
// The server stamps PlayerName with the sender's nickname.
type GameCommand struct {
	PlayerName string `json:"player_name"`
	Command    string `json:"command"`
}

func (*GameCommand) Kind() string { return KindGameCommand }

func (m *GameCommand) validate() error { return requireField("command", m.Command) }

// AvailableCharacters lists the characters not yet bound to any player.
type AvailableCharacters struct {
	Characters []string `json:"characters"`
}

func (*AvailableCharacters) Kind() string    { return KindAvailableCharacters }
func (*AvailableCharacters) validate() error { return nil }

// Narrator is third-person game prose addressed to one or all players.
type Narrator struct {
	Message string `json:"message"`
}

func (*Narrator) Kind() string { return KindNarrator }

func (m *Narrator) validate() error { return requireField("message", m.Message) }

// Dialogue is speech attributed to a character or NPC.
type Dialogue struct {
	Speaker string `json:"speaker"`
	Message string `json:"message"`
}

func (*Dialogue) Kind() string { return KindDialogue }

func (m *Dialogue) validate() error {
	if err := requireField("speaker", m.Speaker); err != nil {
		return err
	}
	return requireField("message", m.Message)
}
