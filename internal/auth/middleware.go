package auth

import (
	"errors"
	"time"

	"backend-caravan/internal/db"
	"backend-caravan/internal/identity"
	"backend-caravan/internal/retreat"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// TokenHeader carries the opaque per-device session token.
const TokenHeader = "X-Device-Token"

// Middleware resolves the device token to a live participant and retreat,
// re-syncs the leader role against the allowlist, and touches the last-seen
// watermark. Every authenticated route runs through here.
func Middleware(q db.Querier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(TokenHeader)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Device token required")
		}

		row := q.QueryRow(c.Context(), `
			SELECT p.id, p.retreat_id, p.name, COALESCE(p.phone_e164, ''), p.gender, p.is_leader,
			       p.location_sharing_enabled, p.device_token, p.expo_push_token,
			       p.vehicle_color, p.vehicle_description, p.avatar_path, p.joined_at, p.last_seen_at,
			       r.id, r.name, r.code, r.destination_name, r.destination_lat, r.destination_lng,
			       r.starts_at, r.ends_at, r.is_active
			FROM participants p
			JOIN retreats r ON r.id = p.retreat_id
			WHERE p.device_token=$1 AND r.is_active=TRUE AND r.ends_at >= now()
		`, token)

		var p retreat.Participant
		var r retreat.Retreat
		err := row.Scan(&p.ID, &p.RetreatID, &p.Name, &p.PhoneE164, &p.Gender, &p.IsLeader,
			&p.LocationSharingEnabled, &p.DeviceToken, &p.ExpoPushToken,
			&p.VehicleColor, &p.VehicleDescription, &p.AvatarPath, &p.JoinedAt, &p.LastSeenAt,
			&r.ID, &r.Name, &r.Code, &r.DestinationName, &r.DestinationLat, &r.DestinationLng,
			&r.StartsAt, &r.EndsAt, &r.IsActive)
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired session")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		// Allowlist edits take effect on the next request, no rejoin needed.
		resolver := identity.NewResolver(q)
		leader, err := resolver.SyncLeaderRole(c.Context(), p.ID, p.RetreatID, p.PhoneE164, p.IsLeader)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		p.IsLeader = leader

		now := time.Now()
		if _, err := q.Exec(c.Context(), `
			UPDATE participants SET last_seen_at=now() WHERE id=$1
		`, p.ID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		p.LastSeenAt = &now

		retreat.BindSession(c, p, r)
		return c.Next()
	}
}
