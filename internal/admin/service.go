package admin

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"backend-caravan/internal/db"
	"backend-caravan/internal/retreat"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrParticipantNotInRetreat = errors.New("participant does not belong to the retreat")

// codeAlphabet leaves out easily confused characters.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 8

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

type CreateRetreatInput struct {
	Name            string
	Code            string
	DestinationName *string
	DestinationLat  *float64
	DestinationLng  *float64
	StartsAt        time.Time
	EndsAt          time.Time
}

// CreateRetreat inserts a retreat, generating a join code when none is
// given. A generated code that collides is regenerated once.
func (s *Service) CreateRetreat(ctx context.Context, in CreateRetreatInput) (retreat.Retreat, error) {
	generated := in.Code == ""
	if generated {
		in.Code = randomCode()
	}

	ret, err := s.createOnce(ctx, in)
	if generated && isUniqueViolation(err) {
		in.Code = randomCode()
		ret, err = s.createOnce(ctx, in)
	}
	return ret, err
}

func (s *Service) createOnce(ctx context.Context, in CreateRetreatInput) (retreat.Retreat, error) {
	ret := retreat.Retreat{
		Name:            in.Name,
		Code:            in.Code,
		DestinationName: in.DestinationName,
		DestinationLat:  in.DestinationLat,
		DestinationLng:  in.DestinationLng,
		StartsAt:        in.StartsAt,
		EndsAt:          in.EndsAt,
		IsActive:        true,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO retreats (name, code, destination_name, destination_lat, destination_lng, starts_at, ends_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE)
		RETURNING id
	`, in.Name, in.Code, in.DestinationName, in.DestinationLat, in.DestinationLng, in.StartsAt, in.EndsAt).
		Scan(&ret.ID)
	if err != nil {
		return retreat.Retreat{}, err
	}
	return ret, nil
}

// UpsertAlias points an alternate join code at a canonical one.
func (s *Service) UpsertAlias(ctx context.Context, alias, code string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO retreat_code_aliases (alias, code)
		VALUES ($1,$2)
		ON CONFLICT (alias) DO UPDATE SET code=EXCLUDED.code
	`, alias, code)
	return err
}

type MergeResult struct {
	LocationsMoved int64 `json:"locations_moved"`
	MessagesMoved  int64 `json:"messages_moved"`
}

// MergeParticipants folds a duplicate participant into a canonical one:
// history moves over, the phone identity follows when the canonical row has
// none, and the duplicate row is removed.
func (s *Service) MergeParticipants(ctx context.Context, retreatID, fromID, toID int64) (MergeResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	defer tx.Rollback(ctx)

	var fromPhone, toPhone *string
	err = tx.QueryRow(ctx, `
		SELECT a.phone_e164, b.phone_e164
		FROM participants a, participants b
		WHERE a.id=$1 AND a.retreat_id=$3 AND b.id=$2 AND b.retreat_id=$3
		FOR UPDATE
	`, fromID, toID, retreatID).Scan(&fromPhone, &toPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return MergeResult{}, ErrParticipantNotInRetreat
	}
	if err != nil {
		return MergeResult{}, err
	}

	var result MergeResult
	tag, err := tx.Exec(ctx, `
		UPDATE participant_locations SET participant_id=$2 WHERE participant_id=$1
	`, fromID, toID)
	if err != nil {
		return MergeResult{}, err
	}
	result.LocationsMoved = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		UPDATE messages SET participant_id=$2 WHERE participant_id=$1
	`, fromID, toID)
	if err != nil {
		return MergeResult{}, err
	}
	result.MessagesMoved = tag.RowsAffected()

	if toPhone == nil && fromPhone != nil {
		// Free the unique slot before the canonical row claims it.
		if _, err := tx.Exec(ctx, `UPDATE participants SET phone_e164=NULL WHERE id=$1`, fromID); err != nil {
			return MergeResult{}, err
		}
		if _, err := tx.Exec(ctx, `UPDATE participants SET phone_e164=$2 WHERE id=$1`, toID, fromPhone); err != nil {
			return MergeResult{}, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM participants WHERE id=$1`, fromID); err != nil {
		return MergeResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

func randomCode() string {
	buf := make([]byte, codeLength)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
