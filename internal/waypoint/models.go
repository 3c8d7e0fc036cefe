package waypoint

import "time"

type Waypoint struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Order       int        `json:"order"`
	ETA         *time.Time `json:"eta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
