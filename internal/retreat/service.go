package retreat

import (
	"context"
	"errors"
	"strings"
	"time"

	"backend-caravan/internal/db"
	"backend-caravan/internal/identity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotJoinable           = errors.New("invalid retreat code or retreat is not active")
	ErrNoExistingParticipant = errors.New("no existing participant found for that phone number")
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// ResolveCode canonicalizes a join code: uppercase, then one lookup in the
// alias table so legacy numeric codes keep working without redeploys.
func (s *Service) ResolveCode(ctx context.Context, raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))

	var canonical string
	err := s.db.QueryRow(ctx, `
		SELECT code FROM retreat_code_aliases WHERE alias=$1
	`, code).Scan(&canonical)
	if errors.Is(err, pgx.ErrNoRows) {
		return code, nil
	}
	if err != nil {
		return "", err
	}
	return canonical, nil
}

// FindJoinable returns the retreat for a canonical code when it is active
// and not past its end time.
func (s *Service) FindJoinable(ctx context.Context, code string) (Retreat, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, code, destination_name, destination_lat, destination_lng, starts_at, ends_at, is_active
		FROM retreats
		WHERE code=$1 AND is_active=TRUE AND ends_at >= now()
	`, code)

	var r Retreat
	err := row.Scan(&r.ID, &r.Name, &r.Code, &r.DestinationName, &r.DestinationLat, &r.DestinationLng, &r.StartsAt, &r.EndsAt, &r.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Retreat{}, ErrNotJoinable
	}
	if err != nil {
		return Retreat{}, err
	}
	return r, nil
}

const (
	ModeJoin   = "join"
	ModeSignin = "signin"
)

// JoinInput carries the submitted profile fields. Pointer fields distinguish
// "explicitly supplied" from "omitted", which sign-in mode relies on.
type JoinInput struct {
	Mode               string
	Name               string
	PhoneE164          string
	Gender             *string
	VehicleColor       *string
	VehicleDescription *string
	ExpoPushToken      *string
}

type JoinResult struct {
	ParticipantID int64
	DeviceToken   string
	IsLeader      bool
	Rejoined      bool
}

// Join runs the join/sign-in upsert for one (retreat, phone) identity.
//
// The matched participant row is locked for the duration of the transaction
// so concurrent joins with the same phone cannot create duplicates or leave
// two valid device tokens behind. A unique-violation race on insert is
// retried once; by then the winner's row exists and is matched instead.
func (s *Service) Join(ctx context.Context, ret Retreat, in JoinInput, resolver *identity.Resolver) (JoinResult, error) {
	res, err := s.joinOnce(ctx, ret, in, resolver)
	if isUniqueViolation(err) {
		res, err = s.joinOnce(ctx, ret, in, resolver)
	}
	return res, err
}

func (s *Service) joinOnce(ctx context.Context, ret Retreat, in JoinInput, resolver *identity.Resolver) (JoinResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, name, gender, vehicle_color, vehicle_description, expo_push_token, is_leader, joined_at
		FROM participants
		WHERE retreat_id=$1 AND phone_e164=$2
		FOR UPDATE
	`, ret.ID, in.PhoneE164)

	var existing struct {
		id                 int64
		name               string
		gender             *string
		vehicleColor       *string
		vehicleDescription *string
		expoPushToken      *string
		isLeader           bool
		joinedAt           time.Time
	}
	found := true
	err = row.Scan(&existing.id, &existing.name, &existing.gender, &existing.vehicleColor,
		&existing.vehicleDescription, &existing.expoPushToken, &existing.isLeader, &existing.joinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		found = false
	} else if err != nil {
		return JoinResult{}, err
	}

	if in.Mode == ModeSignin && !found {
		return JoinResult{}, ErrNoExistingParticipant
	}

	name := in.Name
	gender := in.Gender
	vehicleColor := in.VehicleColor
	vehicleDescription := in.VehicleDescription
	if in.Mode == ModeSignin {
		// Sign-in reuses the stored profile; submitted fields win only
		// when explicitly present.
		if existing.name != "" {
			name = existing.name
		}
		if gender == nil {
			gender = existing.gender
		}
		if vehicleColor == nil {
			vehicleColor = existing.vehicleColor
		}
		if vehicleDescription == nil {
			vehicleDescription = existing.vehicleDescription
		}
	}

	pushToken := in.ExpoPushToken
	if pushToken == nil && found {
		pushToken = existing.expoPushToken
	}

	var existingLeader *bool
	if found {
		existingLeader = &existing.isLeader
	}
	isLeader, err := resolver.ResolveLeaderFlag(ctx, ret.ID, in.PhoneE164, existingLeader)
	if err != nil {
		return JoinResult{}, err
	}

	token := uuid.NewString()

	result := JoinResult{DeviceToken: token, IsLeader: isLeader, Rejoined: found}
	if found {
		result.ParticipantID = existing.id
		_, err = tx.Exec(ctx, `
			UPDATE participants
			SET name=$2, gender=$3, is_leader=$4, device_token=$5, expo_push_token=$6,
			    vehicle_color=$7, vehicle_description=$8, last_seen_at=now()
			WHERE id=$1
		`, existing.id, name, gender, isLeader, token, pushToken, vehicleColor, vehicleDescription)
		if err != nil {
			return JoinResult{}, err
		}
	} else {
		err = tx.QueryRow(ctx, `
			INSERT INTO participants (retreat_id, name, phone_e164, gender, is_leader, device_token,
			                          expo_push_token, vehicle_color, vehicle_description, joined_at, last_seen_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
			RETURNING id
		`, ret.ID, name, in.PhoneE164, gender, isLeader, token, pushToken, vehicleColor, vehicleDescription).
			Scan(&result.ParticipantID)
		if err != nil {
			return JoinResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return JoinResult{}, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Leave nulls the device token so the old credential can never be reused.
func (s *Service) Leave(ctx context.Context, participantID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE participants SET device_token=NULL WHERE id=$1
	`, participantID)
	return err
}

// LiveParticipantCount counts signed-in participants (non-null token).
func (s *Service) LiveParticipantCount(ctx context.Context, retreatID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM participants WHERE retreat_id=$1 AND device_token IS NOT NULL
	`, retreatID).Scan(&count)
	return count, err
}

// SetLocationSharing flips the sharing flag. Disabling is a privacy control:
// the participant's entire location history is hard-deleted.
func (s *Service) SetLocationSharing(ctx context.Context, participantID int64, enabled bool) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE participants SET location_sharing_enabled=$2 WHERE id=$1
	`, participantID, enabled); err != nil {
		return err
	}
	if enabled {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		DELETE FROM participant_locations WHERE participant_id=$1
	`, participantID)
	return err
}

// DeleteAccount removes the participant row; locations and messages cascade.
// The avatar path is returned so the caller can remove the file.
func (s *Service) DeleteAccount(ctx context.Context, participantID int64) (*string, error) {
	var avatarPath *string
	err := s.db.QueryRow(ctx, `
		SELECT avatar_path FROM participants WHERE id=$1
	`, participantID).Scan(&avatarPath)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM participants WHERE id=$1`, participantID); err != nil {
		return nil, err
	}
	return avatarPath, nil
}

// SetAvatarPath records the stored avatar location, nil to clear it.
func (s *Service) SetAvatarPath(ctx context.Context, participantID int64, path *string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE participants SET avatar_path=$2 WHERE id=$1
	`, participantID, path)
	return err
}

// UpdateDestination points the retreat at a new destination.
func (s *Service) UpdateDestination(ctx context.Context, retreatID int64, name string, lat, lng float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE retreats SET destination_name=$2, destination_lat=$3, destination_lng=$4 WHERE id=$1
	`, retreatID, name, lat, lng)
	return err
}
