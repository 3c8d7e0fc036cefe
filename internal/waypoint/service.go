package waypoint

import (
	"context"
	"time"

	"backend-caravan/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// List returns the retreat's route in travel order.
func (s *Service) List(ctx context.Context, retreatID int64) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, latitude, longitude, waypoint_order, eta, created_at
		FROM waypoints
		WHERE retreat_id=$1
		ORDER BY waypoint_order, id
	`, retreatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Waypoint
	for rows.Next() {
		var w Waypoint
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.Lat, &w.Lng, &w.Order, &w.ETA, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateInput carries the new waypoint. A nil Order appends to the end of
// the route.
type CreateInput struct {
	Name        string
	Description *string
	Lat         float64
	Lng         float64
	Order       *int
	ETA         *time.Time
}

func (s *Service) Create(ctx context.Context, retreatID int64, in CreateInput) (Waypoint, error) {
	w := Waypoint{
		Name:        in.Name,
		Description: in.Description,
		Lat:         in.Lat,
		Lng:         in.Lng,
		ETA:         in.ETA,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO waypoints (retreat_id, name, description, latitude, longitude, waypoint_order, eta)
		VALUES ($1,$2,$3,$4,$5,
		        COALESCE($6, (SELECT COALESCE(MAX(waypoint_order),0)+1 FROM waypoints WHERE retreat_id=$1)),
		        $7)
		RETURNING id, waypoint_order, created_at
	`, retreatID, in.Name, in.Description, in.Lat, in.Lng, in.Order, in.ETA).
		Scan(&w.ID, &w.Order, &w.CreatedAt)
	if err != nil {
		return Waypoint{}, err
	}
	return w, nil
}

// Delete removes one waypoint, scoped to the retreat so a leader cannot
// touch another retreat's route.
func (s *Service) Delete(ctx context.Context, retreatID, waypointID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM waypoints WHERE id=$1 AND retreat_id=$2
	`, waypointID, retreatID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
