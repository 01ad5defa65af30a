// Package protocol defines the tagged messages exchanged between session
// peers. The tag selects the handler; payloads ride as raw JSON so an unknown
// or malformed message can be dropped without touching session state.
package protocol

import (
	"encoding/json"

	"github.com/jdowell/racetype/internal/race"
)

type Kind string

const (
	KindIdentify     Kind = "IDENTIFY"
	KindWelcome      Kind = "WELCOME"
	KindPlayerJoined Kind = "PLAYER_JOINED"
	KindPlayerLeft   Kind = "PLAYER_LEFT"
	KindPlayerUpdate Kind = "PLAYER_UPDATE"
	KindStartRace    Kind = "START_RACE"
	KindProgress     Kind = "PROGRESS"
	KindFinished     Kind = "FINISHED"
	KindTimeout      Kind = "TIMEOUT"
	KindEndRace      Kind = "END_RACE"
	KindError        Kind = "ERROR"
)

type Envelope struct {
	Kind Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Identify carries a guest's profile to the host after connecting.
type Identify struct {
	Name          string `json:"name"`
	AvatarVariant string `json:"avatar_variant"`
	AvatarColor   string `json:"avatar_color"`
}

// Welcome assigns the joining guest its slot and brings it up to date with a
// full roster snapshot. Empty slots are JSON nulls.
type Welcome struct {
	Slot     int            `json:"slot"`
	Players  []*race.Player `json:"players"`
	RoomCode string         `json:"room_code"`
}

type PlayerJoined struct {
	Slot   int          `json:"slot"`
	Player *race.Player `json:"player"`
}

type PlayerLeft struct {
	Slot int `json:"slot"`
}

type PlayerUpdate struct {
	Slot   int          `json:"slot"`
	Player *race.Player `json:"player"`
}

// StartRace begins a new race for every recipient with the given text and
// roster snapshot.
type StartRace struct {
	Text    string         `json:"text"`
	Players []*race.Player `json:"players"`
}

type Progress struct {
	Slot     int     `json:"slot"`
	Progress float64 `json:"progress"`
	WPM      int     `json:"wpm"`
	Accuracy int     `json:"accuracy"`
}

type Finished struct {
	Slot     int `json:"slot"`
	Rank     int `json:"finish_rank"`
	WPM      int `json:"wpm"`
	Accuracy int `json:"accuracy"`
}

type Timeout struct {
	Slot int `json:"slot"`
	WPM  int `json:"wpm"`
}

// EndRace finalizes the race on every recipient with the host's snapshot.
type EndRace struct {
	Players []*race.Player `json:"players"`
}

type Error struct {
	Message string `json:"message"`
}

// Encode wraps a payload in a tagged envelope.
func Encode(kind Kind, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Kind: kind, Data: data})
}

// DecodeEnvelope parses just the tag, leaving the payload raw.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// DecodePayload parses an envelope's payload into v.
func DecodePayload(env Envelope, v any) error {
	return json.Unmarshal(env.Data, v)
}
