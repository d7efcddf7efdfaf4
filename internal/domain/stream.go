package domain

import "time"

type StreamID string

// StreamEntry describes one broadcaster's published stream inside a room.
// The stream registry owns the canonical entry; everyone else looks it up
// by StreamID.
type StreamEntry struct {
	ID        StreamID
	Owner     UserID
	Username  string
	CamSlot   int
	StartedAt time.Time
}

// StreamInfo is the read-only wire view of an entry, including its current
// position in the room's slot order.
type StreamInfo struct {
	ID       StreamID `json:"uuid"`
	Index    int      `json:"index"`
	Username string   `json:"username"`
	CamSlot  int      `json:"camslot"`
}

func (e *StreamEntry) Info(index int) StreamInfo {
	return StreamInfo{
		ID:       e.ID,
		Index:    index,
		Username: e.Username,
		CamSlot:  e.CamSlot,
	}
}
