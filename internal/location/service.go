package location

import (
	"context"
	"errors"
	"time"

	"backend-caravan/internal/avatar"
	"backend-caravan/internal/db"
	"backend-caravan/internal/mirror"
	"backend-caravan/internal/retreat"

	"github.com/jackc/pgx/v5"
)

// onlineWindow is how recently a participant must have been seen to count
// as online. Evaluated read side, never stored.
const onlineWindow = 300 * time.Second

var ErrSharingDisabled = errors.New("location sharing is disabled")

// Labeler turns coordinates into a human readable place label, nil when no
// label is available. Implementations must degrade rather than fail.
type Labeler interface {
	Label(ctx context.Context, lat, lng float64, accuracyM *float64) *string
}

type Service struct {
	db        db.Querier
	mirror    *mirror.Mirror
	collapser *Collapser
	labeler   Labeler
	avatars   *avatar.Store

	now func() time.Time
}

func NewService(q db.Querier, m *mirror.Mirror, collapser *Collapser, labeler Labeler, avatars *avatar.Store) *Service {
	return &Service{
		db:        q,
		mirror:    m,
		collapser: collapser,
		labeler:   labeler,
		avatars:   avatars,
		now:       time.Now,
	}
}

// Record appends one location sample for the participant. The history is
// append only; readers always resolve the latest row themselves.
func (s *Service) Record(ctx context.Context, p retreat.Participant, in Point) (Point, error) {
	if !p.LocationSharingEnabled {
		return Point{}, ErrSharingDisabled
	}
	if in.RecordedAt.IsZero() {
		in.RecordedAt = s.now()
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO participant_locations (participant_id, latitude, longitude, accuracy, speed, heading, altitude, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, p.ID, in.Lat, in.Lng, in.AccuracyM, in.SpeedMps, in.Heading, in.AltitudeM, in.RecordedAt).Scan(&in.ID)
	if err != nil {
		return Point{}, err
	}

	s.mirror.Forward(p.RetreatID, p.ID, mirror.Reading{
		Lat:        in.Lat,
		Lng:        in.Lng,
		AccuracyM:  in.AccuracyM,
		SpeedMps:   in.SpeedMps,
		Heading:    in.Heading,
		AltitudeM:  in.AltitudeM,
		RecordedAt: in.RecordedAt,
	})
	return in, nil
}

// LatestFor returns the participant's newest sample, nil when none exists.
// Newest means highest recorded_at, highest id on ties.
func (s *Service) LatestFor(ctx context.Context, participantID int64) (*Point, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, latitude, longitude, accuracy, speed, heading, altitude, recorded_at
		FROM participant_locations
		WHERE participant_id=$1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, participantID)

	var p Point
	err := row.Scan(&p.ID, &p.Lat, &p.Lng, &p.AccuracyM, &p.SpeedMps, &p.Heading, &p.AltitudeM, &p.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Roster is the map view payload: every active participant (one still
// holding a device token) with their latest location, duplicate identities
// collapsed, place labels attached.
type Roster struct {
	Entries          []RosterEntry
	OnlineCount      int
	ParticipantCount int
	ServerTime       time.Time
}

func (s *Service) RosterFor(ctx context.Context, retreatID, viewerID int64) (Roster, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.phone_e164, ''), p.gender, p.is_leader, p.location_sharing_enabled,
		       p.vehicle_color, p.vehicle_description, p.avatar_path, p.last_seen_at,
		       l.id, l.latitude, l.longitude, l.accuracy, l.speed, l.heading, l.altitude, l.recorded_at
		FROM participants p
		LEFT JOIN LATERAL (
			SELECT id, latitude, longitude, accuracy, speed, heading, altitude, recorded_at
			FROM participant_locations
			WHERE participant_id = p.id
			ORDER BY recorded_at DESC, id DESC
			LIMIT 1
		) l ON TRUE
		WHERE p.retreat_id=$1 AND p.device_token IS NOT NULL
		ORDER BY p.id
	`, retreatID)
	if err != nil {
		return Roster{}, err
	}
	defer rows.Close()

	var entries []RosterEntry
	for rows.Next() {
		var e RosterEntry
		var avatarPath *string
		var locID *int64
		var lat, lng, accuracy, speed, heading, altitude *float64
		var recordedAt *time.Time
		err := rows.Scan(&e.ParticipantID, &e.Name, &e.phoneE164, &e.Gender, &e.IsLeader, &e.SharingEnabled,
			&e.VehicleColor, &e.VehicleDescription, &avatarPath, &e.lastSeenAt,
			&locID, &lat, &lng, &accuracy, &speed, &heading, &altitude, &recordedAt)
		if err != nil {
			return Roster{}, err
		}
		if s.avatars != nil {
			e.AvatarURL = s.avatars.URL(avatarPath)
		}
		if locID != nil {
			e.Location = &Point{
				ID: *locID, Lat: *lat, Lng: *lng,
				AccuracyM: accuracy, SpeedMps: speed, Heading: heading, AltitudeM: altitude,
				RecordedAt: *recordedAt,
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Roster{}, err
	}

	entries = s.collapser.Collapse(entries, viewerID)

	now := s.now()
	roster := Roster{Entries: entries, ParticipantCount: len(entries), ServerTime: now}
	for i := range entries {
		e := &entries[i]
		e.IsCurrentUser = e.ParticipantID == viewerID
		if e.lastSeenAt != nil {
			ago := int64(now.Sub(*e.lastSeenAt).Seconds())
			if ago < 0 {
				ago = 0
			}
			e.LastSeenSecondsAgo = &ago
			e.Online = now.Sub(*e.lastSeenAt) < onlineWindow
		}
		if e.Online {
			roster.OnlineCount++
		}
		if s.labeler != nil && e.Location != nil {
			e.Place = s.labeler.Label(ctx, e.Location.Lat, e.Location.Lng, e.Location.AccuracyM)
		}
	}
	return roster, nil
}
