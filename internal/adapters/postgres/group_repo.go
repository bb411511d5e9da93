package postgres

import (
	"context"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// GroupRepo implements ports.GroupRepository with pgx.
type GroupRepo struct {
	db *DB
}

// NewGroupRepo creates a new GroupRepo.
func NewGroupRepo(db *DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// Create inserts a group.
func (r *GroupRepo) Create(ctx context.Context, g *domain.Group) error {
	lat, lng := latLng(g.Location)
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO groups (id, name, teacher_id, location_lat, location_lng, radius_meters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.Name, g.TeacherID, lat, lng, g.RadiusMeters, g.CreatedAt)
	return mapErr(err, "insert group")
}

// GetByID returns a group by id.
func (r *GroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	var lat, lng *float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, teacher_id, location_lat, location_lng, radius_meters, created_at
		FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.TeacherID, &lat, &lng, &g.RadiusMeters, &g.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "group "+id)
	}
	g.Location = point(lat, lng)
	return &g, nil
}
