package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-caravan/internal/retreat"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func participantRow(token string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "retreat_id", "name", "phone_e164", "gender", "is_leader",
		"location_sharing_enabled", "device_token", "expo_push_token",
		"vehicle_color", "vehicle_description", "avatar_path", "joined_at", "last_seen_at",
		"r_id", "r_name", "r_code", "destination_name", "destination_lat", "destination_lng",
		"starts_at", "ends_at", "is_active",
	}).AddRow(
		int64(1), int64(2), "Tester", "+15012315761", nil, false,
		true, &token, nil,
		nil, nil, nil, now, &now,
		int64(2), "Spring Retreat", "TEST26", nil, nil, nil,
		now.Add(-time.Hour), now.Add(time.Hour), true,
	)
}

func TestMiddlewareMissingToken(t *testing.T) {
	app := fiber.New()
	app.Get("/status", Middleware(nil), func(c *fiber.Ctx) error { return c.SendStatus(200) })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v %v", resp.StatusCode, err)
	}
}

func TestMiddlewareUnknownToken(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT p\.id, p\.retreat_id`).
		WithArgs("stale-token").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	app := fiber.New()
	app.Get("/status", Middleware(mock), func(c *fiber.Ctx) error { return c.SendStatus(200) })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(TokenHeader, "stale-token")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %v %v", resp.StatusCode, err)
	}
}

func TestMiddlewareBindsParticipantAndRetreat(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT p\.id, p\.retreat_id`).
		WithArgs("live-token").
		WillReturnRows(participantRow("live-token"))
	// Leader sync: sticky mode, flag unchanged, no write.
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1\)`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE participants SET last_seen_at=now\(\)`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	var got retreat.Participant
	var gotRetreat retreat.Retreat

	app := fiber.New()
	app.Get("/status", Middleware(mock), func(c *fiber.Ctx) error {
		got = retreat.ParticipantFrom(c)
		gotRetreat = retreat.RetreatFrom(c)
		return c.SendStatus(200)
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(TokenHeader, "live-token")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v %v", resp.StatusCode, err)
	}
	if got.ID != 1 || got.Name != "Tester" {
		t.Fatalf("unexpected participant: %+v", got)
	}
	if gotRetreat.ID != 2 || gotRetreat.Code != "TEST26" {
		t.Fatalf("unexpected retreat: %+v", gotRetreat)
	}
	if got.LastSeenAt == nil {
		t.Fatalf("expected refreshed last seen")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMiddlewarePromotesViaAllowlist(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT p\.id, p\.retreat_id`).
		WithArgs("live-token").
		WillReturnRows(participantRow("live-token"))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1\)`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1 AND phone_e164=\$2\)`).
		WithArgs(int64(2), "+15012315761").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE participants SET is_leader=\$2`).
		WithArgs(int64(1), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE participants SET last_seen_at=now\(\)`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	var got retreat.Participant

	app := fiber.New()
	app.Get("/status", Middleware(mock), func(c *fiber.Ctx) error {
		got = retreat.ParticipantFrom(c)
		return c.SendStatus(200)
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(TokenHeader, "live-token")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v %v", resp.StatusCode, err)
	}
	if !got.IsLeader {
		t.Fatalf("expected promotion reflected in bound participant")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
