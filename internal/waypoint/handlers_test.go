package waypoint

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

func newTestApp(t *testing.T, mock pgxmock.PgxPoolIface, isLeader bool) *fiber.App {
	t.Helper()
	app := fiber.New()
	p := retreat.Participant{ID: 11, RetreatID: 3, Name: "Sarah", IsLeader: isLeader}
	ret := retreat.Retreat{ID: 3, Name: "Fall Retreat", Code: "BR2026", IsActive: true}
	RegisterRoutes(app.Group("/api/v1/retreat"), NewService(mock), retreat.NewService(mock), retreat.Bind(p, ret))
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

func TestCreateWaypointForbiddenForNonLeader(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	app := newTestApp(t, mock, false)
	status, body := doJSON(t, app, "POST", "/api/v1/retreat/waypoints", fiber.Map{
		"name": "Fuel stop",
		"lat":  36.1,
		"lng":  -94.1,
	})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d: %v", status, body)
	}
}

func TestCreateWaypointSetsDestination(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO waypoints`).
		WithArgs(int64(3), "Camp Long Creek", pgxmock.AnyArg(), 36.5622, -93.3082, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "waypoint_order", "created_at"}).
			AddRow(int64(7), 1, created))
	mock.ExpectExec(`UPDATE retreats SET destination_name=\$2`).
		WithArgs(int64(3), "Camp Long Creek", 36.5622, -93.3082).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	app := newTestApp(t, mock, true)
	status, body := doJSON(t, app, "POST", "/api/v1/retreat/waypoints", fiber.Map{
		"name":               "Camp Long Creek",
		"lat":                36.5622,
		"lng":                -93.3082,
		"set_as_destination": true,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}

	meta, _ := body["meta"].(map[string]any)
	dest, _ := meta["destination"].(map[string]any)
	if dest["name"] != "Camp Long Creek" {
		t.Fatalf("expected destination updated in meta, got %v", meta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListWaypointsIncludesDestinationMeta(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM waypoints`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "description", "latitude", "longitude", "waypoint_order", "eta", "created_at",
		}))

	app := newTestApp(t, mock, false)
	status, body := doJSON(t, app, "GET", "/api/v1/retreat/waypoints", nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if data, ok := body["data"].([]any); !ok || len(data) != 0 {
		t.Fatalf("expected empty waypoint list, got %v", body["data"])
	}
}

func TestDeleteWaypointNotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM waypoints WHERE id=\$1 AND retreat_id=\$2`).
		WithArgs(int64(99), int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	app := newTestApp(t, mock, true)
	status, _ := doJSON(t, app, "DELETE", "/api/v1/retreat/waypoints/99", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
