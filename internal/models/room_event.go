package models

import "time"

type RoomEventType string

const (
	RoomEventEnter RoomEventType = "enter"
	RoomEventExit  RoomEventType = "exit"
	RoomEventFlash RoomEventType = "flash"
)

func (t RoomEventType) Valid() bool {
	switch t {
	case RoomEventEnter, RoomEventExit, RoomEventFlash:
		return true
	}
	return false
}

// TimestampSource records who produced a room event's timestamp. Server-assigned
// timestamps carry network latency and are reported as degraded by the reconciler.
type TimestampSource string

const (
	TimestampClient TimestampSource = "client"
	TimestampServer TimestampSource = "server"
)

type RoomEvent struct {
	Seq             int64           `json:"seq"`
	SessionID       string          `json:"session_id"`
	EventType       RoomEventType   `json:"event_type"`
	RoomID          string          `json:"room_id"`
	PlayerName      *string         `json:"player_name"`
	Timestamp       int64           `json:"timestamp"`
	TimestampSource TimestampSource `json:"timestamp_source"`
	CreatedAt       time.Time       `json:"created_at"`
}
