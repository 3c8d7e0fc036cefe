package message

import "time"

const (
	TypeChat   = "chat"
	TypeAlert  = "alert"
	TypeStatus = "status"
)

type Message struct {
	ID             int64     `json:"id"`
	ParticipantID  int64     `json:"participant_id"`
	SenderName     string    `json:"sender_name"`
	SenderIsLeader bool      `json:"sender_is_leader"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	Lat            *float64  `json:"lat,omitempty"`
	Lng            *float64  `json:"lng,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
