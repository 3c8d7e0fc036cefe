package identity

import (
	"context"
	"strconv"

	"backend-caravan/internal/db"
)

// Resolver decides whether a phone identity carries leader privileges in a
// retreat. A retreat with at least one allowlist entry is in "allowlist
// mode": membership is authoritative and overrides any stored flag. Without
// entries, leader status is sticky and manually assigned.
//
// Construct one Resolver per request. The memoization below must never
// outlive a single request, since allowlist entries change between requests.
type Resolver struct {
	db           db.Querier
	enabledCache map[int64]bool
	phoneCache   map[string]bool
}

func NewResolver(q db.Querier) *Resolver {
	return &Resolver{
		db:           q,
		enabledCache: map[int64]bool{},
		phoneCache:   map[string]bool{},
	}
}

func (r *Resolver) UsesAllowlist(ctx context.Context, retreatID int64) (bool, error) {
	if enabled, ok := r.enabledCache[retreatID]; ok {
		return enabled, nil
	}

	var enabled bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=$1)
	`, retreatID).Scan(&enabled)
	if err != nil {
		return false, err
	}

	r.enabledCache[retreatID] = enabled
	return enabled, nil
}

func (r *Resolver) IsAllowlisted(ctx context.Context, retreatID int64, phoneE164 string) (bool, error) {
	key := strconv.FormatInt(retreatID, 10) + ":" + phoneE164
	if allowed, ok := r.phoneCache[key]; ok {
		return allowed, nil
	}

	var allowed bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=$1 AND phone_e164=$2)
	`, retreatID, phoneE164).Scan(&allowed)
	if err != nil {
		return false, err
	}

	r.phoneCache[key] = allowed
	return allowed, nil
}

// ResolveLeaderFlag computes the leader flag for a phone identity.
// existingIsLeader is the current flag of the matched participant, nil when
// there is none.
func (r *Resolver) ResolveLeaderFlag(ctx context.Context, retreatID int64, phoneE164 string, existingIsLeader *bool) (bool, error) {
	usesAllowlist, err := r.UsesAllowlist(ctx, retreatID)
	if err != nil {
		return false, err
	}

	if !usesAllowlist {
		if existingIsLeader == nil {
			return false, nil
		}
		return *existingIsLeader, nil
	}

	return r.IsAllowlisted(ctx, retreatID, phoneE164)
}

// SyncLeaderRole recomputes the leader flag for a participant and persists
// it when it changed. Participants without a phone identity are left alone.
// Returns the flag the participant should carry after the sync.
func (r *Resolver) SyncLeaderRole(ctx context.Context, participantID, retreatID int64, phoneE164 string, isLeader bool) (bool, error) {
	if phoneE164 == "" {
		return isLeader, nil
	}

	resolved, err := r.ResolveLeaderFlag(ctx, retreatID, phoneE164, &isLeader)
	if err != nil {
		return isLeader, err
	}
	if resolved == isLeader {
		return isLeader, nil
	}

	if _, err := r.db.Exec(ctx, `
		UPDATE participants SET is_leader=$2 WHERE id=$1
	`, participantID, resolved); err != nil {
		return isLeader, err
	}
	return resolved, nil
}
