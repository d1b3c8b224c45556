// Package eligibility provides the external source of roles that decides who
// may vote in a poll or join a group.
package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
)

// Source answers role membership questions. Implementations may call remote
// services, so callers treat the answers as a snapshot.
type Source interface {
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
	ListMembersWithRole(ctx context.Context, roleID string) ([]string, error)
}

// Static is an in-memory Source.
type Static struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{}
}

// NewStatic returns a Static source with the given role to users mapping.
func NewStatic(roles map[string][]string) *Static {
	s := &Static{roles: make(map[string]map[string]struct{})}
	for role, users := range roles {
		for _, u := range users {
			s.Grant(u, role)
		}
	}
	return s
}

// LoadStatic reads a JSON file with the format {"roleId": ["userId", ...]}.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read eligibility file: %w", err)
	}
	roles := map[string][]string{}
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, fmt.Errorf("decode eligibility file: %w", err)
	}
	return NewStatic(roles), nil
}

// Grant gives roleID to userID.
func (s *Static) Grant(userID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[roleID] == nil {
		s.roles[roleID] = make(map[string]struct{})
	}
	s.roles[roleID][userID] = struct{}{}
}

// Revoke takes roleID from userID.
func (s *Static) Revoke(userID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles[roleID], userID)
}

// HasRole implements Source.
func (s *Static) HasRole(_ context.Context, userID, roleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[roleID][userID]
	return ok, nil
}

// ListMembersWithRole implements Source. Users are returned sorted.
func (s *Static) ListMembersWithRole(_ context.Context, roleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.roles[roleID]))
	for u := range s.roles[roleID] {
		users = append(users, u)
	}
	slices.Sort(users)
	return users, nil
}

// Roles returns every role known by the source, sorted.
func (s *Static) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]string, 0, len(s.roles))
	for r := range s.roles {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}
