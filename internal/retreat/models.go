package retreat

import "time"

type Retreat struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Code            string     `json:"code"`
	DestinationName *string    `json:"destination_name,omitempty"`
	DestinationLat  *float64   `json:"destination_lat,omitempty"`
	DestinationLng  *float64   `json:"destination_lng,omitempty"`
	StartsAt        time.Time  `json:"starts_at"`
	EndsAt          time.Time  `json:"ends_at"`
	IsActive        bool       `json:"is_active"`
}

type Destination struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Destination returns the destination payload, nil when none is set.
func (r Retreat) Destination() *Destination {
	if r.DestinationName == nil || *r.DestinationName == "" {
		return nil
	}
	d := Destination{Name: *r.DestinationName}
	if r.DestinationLat != nil {
		d.Lat = *r.DestinationLat
	}
	if r.DestinationLng != nil {
		d.Lng = *r.DestinationLng
	}
	return &d
}

type Participant struct {
	ID                     int64      `json:"id"`
	RetreatID              int64      `json:"retreat_id"`
	Name                   string     `json:"name"`
	PhoneE164              string     `json:"-"`
	Gender                 *string    `json:"gender,omitempty"`
	IsLeader               bool       `json:"is_leader"`
	LocationSharingEnabled bool       `json:"location_sharing_enabled"`
	DeviceToken            *string    `json:"-"`
	ExpoPushToken          *string    `json:"-"`
	VehicleColor           *string    `json:"vehicle_color,omitempty"`
	VehicleDescription     *string    `json:"vehicle_description,omitempty"`
	AvatarPath             *string    `json:"-"`
	JoinedAt               time.Time  `json:"joined_at"`
	LastSeenAt             *time.Time `json:"last_seen_at,omitempty"`
}
