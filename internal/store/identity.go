package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/classtrack/apiserver/types"
)

// roleRepository is the operation set shared by the three account tables.
type roleRepository interface {
	GetByID(ctx context.Context, id string) (types.Identity, error)
	GetByEmail(ctx context.Context, email string) (types.Identity, error)
	Create(ctx context.Context, identity types.Identity) (types.Identity, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// probeOrder fixes the collection order for email lookups so first-match
// behavior stays deterministic when an email exists in more than one table.
var probeOrder = []types.Role{types.RoleAdmin, types.RoleTeacher, types.RoleStudent}

// IdentityStore dispatches account operations to the table selected by role.
type IdentityStore struct {
	admins   *AdminRepository
	teachers *TeacherRepository
	students *StudentRepository
	byRole   map[types.Role]roleRepository
}

func NewIdentityStore(db *sql.DB) *IdentityStore {
	admins := NewAdminRepository(db)
	teachers := NewTeacherRepository(db)
	students := NewStudentRepository(db)
	return &IdentityStore{
		admins:   admins,
		teachers: teachers,
		students: students,
		byRole: map[types.Role]roleRepository{
			types.RoleAdmin:   admins,
			types.RoleTeacher: teachers,
			types.RoleStudent: students,
		},
	}
}

// FindByEmail probes all three tables in a fixed order and returns the first
// match.
func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (types.Identity, error) {
	for _, role := range probeOrder {
		identity, err := s.byRole[role].GetByEmail(ctx, email)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return types.Identity{}, err
		}
	}
	return types.Identity{}, ErrNotFound
}

func (s *IdentityStore) GetByID(ctx context.Context, role types.Role, id string) (types.Identity, error) {
	repo, err := s.repo(role)
	if err != nil {
		return types.Identity{}, err
	}
	return repo.GetByID(ctx, id)
}

func (s *IdentityStore) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	repo, err := s.repo(identity.Role)
	if err != nil {
		return types.Identity{}, err
	}
	return repo.Create(ctx, identity)
}

func (s *IdentityStore) UpdatePassword(ctx context.Context, role types.Role, id, passwordHash string) error {
	repo, err := s.repo(role)
	if err != nil {
		return err
	}
	return repo.UpdatePassword(ctx, id, passwordHash)
}

func (s *IdentityStore) CountAdmins(ctx context.Context) (int, error) {
	return s.admins.Count(ctx)
}

func (s *IdentityStore) UpdateAdminPermissions(ctx context.Context, id string, roleType types.AdminRoleType, permissions []string) error {
	return s.admins.UpdatePermissions(ctx, id, roleType, permissions)
}

func (s *IdentityStore) repo(role types.Role) (roleRepository, error) {
	repo, ok := s.byRole[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return repo, nil
}
