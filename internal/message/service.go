package message

import (
	"context"
	"errors"

	"backend-caravan/internal/db"
	"backend-caravan/internal/retreat"
)

// ErrLeaderRequired rejects alert broadcasts from regular participants.
var ErrLeaderRequired = errors.New("leader role required")

const (
	defaultLimit = 50
	maxLimit     = 100
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// Send stores one message for the sender's retreat. Alerts are restricted
// to leaders; the caller decides how to surface the rejection.
func (s *Service) Send(ctx context.Context, p retreat.Participant, typ, content string, lat, lng *float64) (Message, error) {
	if typ == "" {
		typ = TypeChat
	}
	if typ == TypeAlert && !p.IsLeader {
		return Message{}, ErrLeaderRequired
	}

	msg := Message{
		ParticipantID:  p.ID,
		SenderName:     p.Name,
		SenderIsLeader: p.IsLeader,
		Type:           typ,
		Content:        content,
		Lat:            lat,
		Lng:            lng,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (retreat_id, participant_id, message_type, content, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, p.RetreatID, p.ID, typ, content, lat, lng).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// List returns messages newer than sinceID in chronological order. The
// newest window wins when more than limit messages qualify: the query walks
// ids descending and the page is reversed before returning.
func (s *Service) List(ctx context.Context, retreatID, sinceID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.participant_id, p.name, p.is_leader, m.message_type, m.content, m.latitude, m.longitude, m.created_at
		FROM messages m
		JOIN participants p ON p.id = m.participant_id
		WHERE m.retreat_id=$1 AND m.id > $2
		ORDER BY m.id DESC
		LIMIT $3
	`, retreatID, sinceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []Message
	for rows.Next() {
		var m Message
		err := rows.Scan(&m.ID, &m.ParticipantID, &m.SenderName, &m.SenderIsLeader,
			&m.Type, &m.Content, &m.Lat, &m.Lng, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}
