package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
)

// GroupService handles group records.
type GroupService struct {
	groups ports.GroupRepository
	clock  ports.Clock
}

// NewGroupService creates a new GroupService.
func NewGroupService(groups ports.GroupRepository, clock ports.Clock) *GroupService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &GroupService{groups: groups, clock: clock}
}

// Create validates and stores a new group.
func (s *GroupService) Create(ctx context.Context, g *domain.Group) (*domain.Group, error) {
	g.Name = strings.TrimSpace(g.Name)
	if err := validateStruct(g); err != nil {
		return nil, err
	}
	if g.Location != nil {
		if err := g.Location.Validate(); err != nil {
			return nil, fieldError("location", err.Error())
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = s.clock.Now().UTC()

	if err := s.groups.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// GetByID returns a single group.
func (s *GroupService) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	return s.groups.GetByID(ctx, id)
}
