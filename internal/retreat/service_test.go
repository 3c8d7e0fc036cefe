package retreat

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-caravan/internal/identity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	return mock
}

func testRetreat() Retreat {
	return Retreat{
		ID:       3,
		Name:     "Fall Retreat",
		Code:     "BR2026",
		StartsAt: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
		IsActive: true,
	}
}

func TestResolveCodeNoAlias(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT code FROM retreat_code_aliases WHERE alias=\$1`).
		WithArgs("BR2026").
		WillReturnError(pgx.ErrNoRows)

	code, err := NewService(mock).ResolveCode(context.Background(), " br2026 ")
	if err != nil {
		t.Fatalf("resolve code: %v", err)
	}
	if code != "BR2026" {
		t.Fatalf("expected uppercased input code back, got %q", code)
	}
}

func TestResolveCodeAliased(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT code FROM retreat_code_aliases WHERE alias=\$1`).
		WithArgs("2026").
		WillReturnRows(pgxmock.NewRows([]string{"code"}).AddRow("BR2026"))

	code, err := NewService(mock).ResolveCode(context.Background(), "2026")
	if err != nil || code != "BR2026" {
		t.Fatalf("expected canonical code BR2026, got %q %v", code, err)
	}
}

func TestFindJoinableNotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM retreats`).
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewService(mock).FindJoinable(context.Background(), "NOPE")
	if !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("expected ErrNotJoinable, got %v", err)
	}
}

func TestJoinCreatesParticipant(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	ret := testRetreat()
	phone := "+15012315761"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, gender, vehicle_color, vehicle_description, expo_push_token, is_leader, joined_at`).
		WithArgs(ret.ID, phone).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1\)`).
		WithArgs(ret.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO participants`).
		WithArgs(ret.ID, "Sarah", phone, pgxmock.AnyArg(), false, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	res, err := NewService(mock).Join(context.Background(), ret, JoinInput{
		Mode:      ModeJoin,
		Name:      "Sarah",
		PhoneE164: phone,
	}, identity.NewResolver(mock))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.ParticipantID != 11 || res.Rejoined || res.IsLeader {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.DeviceToken == "" {
		t.Fatalf("expected a fresh device token")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJoinRejoinRegeneratesToken(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	ret := testRetreat()
	phone := "+15012315761"
	joinedAt := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)
	pushToken := "ExponentPushToken[abc]"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, gender, vehicle_color, vehicle_description, expo_push_token, is_leader, joined_at`).
		WithArgs(ret.ID, phone).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "gender", "vehicle_color", "vehicle_description", "expo_push_token", "is_leader", "joined_at",
		}).AddRow(int64(11), "Sarah", nil, nil, nil, &pushToken, true, joinedAt))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1\)`).
		WithArgs(ret.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE participants\s+SET name=\$2`).
		WithArgs(int64(11), "Sarah Jones", pgxmock.AnyArg(), true, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewService(mock).Join(context.Background(), ret, JoinInput{
		Mode:      ModeJoin,
		Name:      "Sarah Jones",
		PhoneE164: phone,
	}, identity.NewResolver(mock))
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if res.ParticipantID != 11 || !res.Rejoined {
		t.Fatalf("expected rejoin of participant 11, got %+v", res)
	}
	// Sticky leadership survives a rejoin when no allowlist exists.
	if !res.IsLeader {
		t.Fatalf("expected leader flag preserved")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJoinSigninRequiresExistingParticipant(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	ret := testRetreat()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, gender, vehicle_color, vehicle_description, expo_push_token, is_leader, joined_at`).
		WithArgs(ret.ID, "+15012315761").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewService(mock).Join(context.Background(), ret, JoinInput{
		Mode:      ModeSignin,
		PhoneE164: "+15012315761",
	}, identity.NewResolver(mock))
	if !errors.Is(err, ErrNoExistingParticipant) {
		t.Fatalf("expected ErrNoExistingParticipant, got %v", err)
	}
}

func TestJoinRetriesOnceOnUniqueViolation(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	ret := testRetreat()
	phone := "+15012315761"
	joinedAt := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)

	// First attempt loses the insert race.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, gender, vehicle_color, vehicle_description, expo_push_token, is_leader, joined_at`).
		WithArgs(ret.ID, phone).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1\)`).
		WithArgs(ret.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO participants`).
		WithArgs(ret.ID, "Sarah", phone, pgxmock.AnyArg(), false, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	// Retry now matches the winner's row.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, gender, vehicle_color, vehicle_description, expo_push_token, is_leader, joined_at`).
		WithArgs(ret.ID, phone).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "gender", "vehicle_color", "vehicle_description", "expo_push_token", "is_leader", "joined_at",
		}).AddRow(int64(12), "Sarah", nil, nil, nil, nil, false, joinedAt))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM leader_phone_allowlist WHERE retreat_id=\$1\)`).
		WithArgs(ret.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE participants\s+SET name=\$2`).
		WithArgs(int64(12), "Sarah", pgxmock.AnyArg(), false, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := NewService(mock).Join(context.Background(), ret, JoinInput{
		Mode:      ModeJoin,
		Name:      "Sarah",
		PhoneE164: phone,
	}, identity.NewResolver(mock))
	if err != nil {
		t.Fatalf("join with retry: %v", err)
	}
	if res.ParticipantID != 12 || !res.Rejoined {
		t.Fatalf("expected retry to adopt the winner row, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetLocationSharingDisablePurgesHistory(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE participants SET location_sharing_enabled=\$2 WHERE id=\$1`).
		WithArgs(int64(11), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM participant_locations WHERE participant_id=\$1`).
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	if err := NewService(mock).SetLocationSharing(context.Background(), 11, false); err != nil {
		t.Fatalf("disable sharing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetLocationSharingEnableKeepsHistory(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE participants SET location_sharing_enabled=\$2 WHERE id=\$1`).
		WithArgs(int64(11), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := NewService(mock).SetLocationSharing(context.Background(), 11, true); err != nil {
		t.Fatalf("enable sharing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteAccountReturnsAvatarPath(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	path := "3/participant-11-1.jpg"
	mock.ExpectQuery(`SELECT avatar_path FROM participants WHERE id=\$1`).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"avatar_path"}).AddRow(&path))
	mock.ExpectExec(`DELETE FROM participants WHERE id=\$1`).
		WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	got, err := NewService(mock).DeleteAccount(context.Background(), 11)
	if err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if got == nil || *got != path {
		t.Fatalf("expected avatar path back, got %v", got)
	}
}
