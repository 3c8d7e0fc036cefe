package identity

import (
	"context"
	"time"

	"backend-caravan/internal/db"
)

// Service is the operator-facing side of the allowlist: mutations here
// promote or demote matching participants immediately, scoped to the one
// (retreat, phone) pair.
type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

type AllowlistEntry struct {
	PhoneE164 string    `json:"phone_e164"`
	CreatedAt time.Time `json:"created_at"`
}

// Allow upserts the allowlist entry and promotes any non-leader participant
// carrying that phone in the retreat. Returns how many were promoted.
func (s *Service) Allow(ctx context.Context, retreatID int64, phoneE164 string) (int64, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO leader_phone_allowlist (retreat_id, phone_e164)
		VALUES ($1,$2)
		ON CONFLICT (retreat_id, phone_e164) DO NOTHING
	`, retreatID, phoneE164)
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE participants SET is_leader=TRUE
		WHERE retreat_id=$1 AND phone_e164=$2 AND is_leader=FALSE
	`, retreatID, phoneE164)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Disallow removes the entry and demotes matching leaders. Returns whether
// an entry existed and how many participants were demoted.
func (s *Service) Disallow(ctx context.Context, retreatID int64, phoneE164 string) (bool, int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM leader_phone_allowlist WHERE retreat_id=$1 AND phone_e164=$2
	`, retreatID, phoneE164)
	if err != nil {
		return false, 0, err
	}
	removed := tag.RowsAffected() > 0

	demoteTag, err := s.db.Exec(ctx, `
		UPDATE participants SET is_leader=FALSE
		WHERE retreat_id=$1 AND phone_e164=$2 AND is_leader=TRUE
	`, retreatID, phoneE164)
	if err != nil {
		return removed, 0, err
	}
	return removed, demoteTag.RowsAffected(), nil
}

func (s *Service) List(ctx context.Context, retreatID int64) ([]AllowlistEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT phone_e164, created_at
		FROM leader_phone_allowlist
		WHERE retreat_id=$1
		ORDER BY phone_e164
	`, retreatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AllowlistEntry
	for rows.Next() {
		var e AllowlistEntry
		if err := rows.Scan(&e.PhoneE164, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
