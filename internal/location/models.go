package location

import "time"

// Point is one stored location sample.
type Point struct {
	ID         int64     `json:"id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	SpeedMps   *float64  `json:"speed_mps,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RosterEntry is one participant in the retreat map view, location included
// when one exists.
type RosterEntry struct {
	ParticipantID      int64   `json:"participant_id"`
	Name               string  `json:"name"`
	Gender             *string `json:"gender,omitempty"`
	IsLeader           bool    `json:"is_leader"`
	IsCurrentUser      bool    `json:"is_current_user"`
	SharingEnabled     bool    `json:"location_sharing_enabled"`
	VehicleColor       *string `json:"vehicle_color,omitempty"`
	VehicleDescription *string `json:"vehicle_description,omitempty"`
	AvatarURL          *string `json:"avatar_url,omitempty"`
	Online             bool    `json:"online"`
	LastSeenSecondsAgo *int64  `json:"last_seen_seconds_ago,omitempty"`
	Location           *Point  `json:"location,omitempty"`
	Place              *string `json:"place,omitempty"`

	phoneE164  string
	lastSeenAt *time.Time
}
