package models

// ReconciledEvent is a room event placed on the recorded video's time axis.
type ReconciledEvent struct {
	Seq            int64         `json:"seq"`
	EventType      RoomEventType `json:"event_type"`
	RoomID         string        `json:"room_id"`
	PlayerName     *string       `json:"player_name,omitempty"`
	Timestamp      int64         `json:"timestamp"`
	TRel           float64       `json:"t_rel"` // seconds into the video, may be negative
	ServerAssigned bool          `json:"server_assigned,omitempty"`
}

type Timeline struct {
	SessionID   string            `json:"session_id"`
	ObsT0       int64             `json:"obs_t0"`
	ReadyOffset *float64          `json:"ready_offset,omitempty"`
	Degraded    bool              `json:"degraded"` // at least one server-assigned timestamp
	Events      []ReconciledEvent `json:"events"`
}

// ClipRange is one enter/exit span of a room, in seconds into the master video.
type ClipRange struct {
	RoomID      string  `json:"roomID"`
	Index       int     `json:"idx"`
	StartOffset float64 `json:"startOffset"`
	EndOffset   float64 `json:"endOffset"`
}
