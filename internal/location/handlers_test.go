package location

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"backend-caravan/internal/retreat"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(t *testing.T, svc *Service, p retreat.Participant) *fiber.App {
	t.Helper()
	app := fiber.New()
	ret := retreat.Retreat{ID: p.RetreatID, Name: "Fall Retreat", Code: "BR2026", IsActive: true}
	RegisterRoutes(app.Group("/api/v1/retreat"), svc, retreat.Bind(p, ret))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestRecordEndpoint(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO participant_locations`).
		WithArgs(int64(11), 36.6437, -93.2185, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(204)))

	app := newTestApp(t, NewService(mock, nil, nil, nil, nil), sharingParticipant())
	status, body := doJSON(t, app, "POST", "/api/v1/retreat/location", fiber.Map{
		"lat": 36.6437,
		"lng": -93.2185,
	})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}

	data, _ := body["data"].(map[string]any)
	if data["recorded"] != true {
		t.Fatalf("expected recorded true, got %v", data)
	}
	if data["next_update_in"].(float64) != nextUpdateSeconds {
		t.Fatalf("expected next_update_in %d, got %v", nextUpdateSeconds, data["next_update_in"])
	}
}

func TestRecordEndpointSharingDisabledConflict(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	p := sharingParticipant()
	p.LocationSharingEnabled = false

	app := newTestApp(t, NewService(mock, nil, nil, nil, nil), p)
	status, body := doJSON(t, app, "POST", "/api/v1/retreat/location", fiber.Map{
		"lat": 36.6437,
		"lng": -93.2185,
	})
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d: %v", status, body)
	}
	if body["error"] != "Location sharing is disabled" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestRecordEndpointValidatesCoordinates(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	app := newTestApp(t, NewService(mock, nil, nil, nil, nil), sharingParticipant())
	status, body := doJSON(t, app, "POST", "/api/v1/retreat/location", fiber.Map{
		"lat": 91.0,
		"lng": -93.2185,
	})
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", status, body)
	}
	errs, _ := body["errors"].(map[string]any)
	if errs["lat"] == nil {
		t.Fatalf("expected lat field error, got %v", body)
	}
}

func TestLocationsEndpoint(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	now := time.Now()
	recordedAt := now.Add(-time.Minute)
	rows := pgxmock.NewRows([]string{
		"id", "name", "phone_e164", "gender", "is_leader", "location_sharing_enabled",
		"vehicle_color", "vehicle_description", "avatar_path", "last_seen_at",
		"loc_id", "latitude", "longitude", "accuracy", "speed", "heading", "altitude", "recorded_at",
	}).AddRow(int64(11), "Sarah", "+15012315761", nil, false, true, nil, nil, nil, &now,
		ptrInt64(204), ptrFloat(36.6437), ptrFloat(-93.2185), nil, nil, nil, nil, &recordedAt)

	mock.ExpectQuery(`(?s)FROM participants p\s+LEFT JOIN LATERAL.*WHERE p\.retreat_id=\$1 AND p\.device_token IS NOT NULL`).
		WithArgs(int64(3)).
		WillReturnRows(rows)

	app := newTestApp(t, NewService(mock, nil, nil, nil, nil), sharingParticipant())
	status, body := doJSON(t, app, "GET", "/api/v1/retreat/locations", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}

	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected one roster entry, got %v", body)
	}
	entry, _ := data[0].(map[string]any)
	if entry["online"] != true {
		t.Fatalf("expected online entry, got %v", entry)
	}
	if entry["is_current_user"] != true {
		t.Fatalf("expected viewer flagged as current user, got %v", entry)
	}
	loc, _ := entry["location"].(map[string]any)
	if loc["lat"].(float64) != 36.6437 {
		t.Fatalf("unexpected location payload: %v", loc)
	}
	meta, _ := body["meta"].(map[string]any)
	if meta["online_count"].(float64) != 1 {
		t.Fatalf("expected online_count 1, got %v", meta)
	}
	if meta["total_participants"].(float64) != 1 {
		t.Fatalf("expected total_participants 1, got %v", meta)
	}
	if _, err := time.Parse(time.RFC3339, meta["server_time"].(string)); err != nil {
		t.Fatalf("expected RFC3339 server_time, got %v: %v", meta["server_time"], err)
	}
}
