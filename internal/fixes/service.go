package fixes

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Service exposes read access to a tenant's fixes.
type Service struct {
	Repo Store
}

// List returns the newest fixes of userID, optionally filtered by machine type.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Fix, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit < 1 || filter.Limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxListLimit)
	}
	filter.MachineType = strings.TrimSpace(filter.MachineType)
	return s.Repo.ListByUser(ctx, userID, filter)
}
