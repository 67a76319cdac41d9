// Package access derives per-request permissions from the caller's role and
// enforces the scoping preconditions before any generation work starts.
package access

import (
	"fmt"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
)

// Role is the caller's access role.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// AccessPattern describes how much of the data a role may see.
type AccessPattern string

const (
	// AccessSingleEntity restricts queries to one scoped entity's rows.
	AccessSingleEntity AccessPattern = "single_entity"
	// AccessAllEntities permits unscoped queries across all rows.
	AccessAllEntities AccessPattern = "all_entities"
)

// Permissions is the derived permission set for a role.
type Permissions struct {
	RequiresScoping  bool          `json:"requires_scoping"`
	AccessPattern    AccessPattern `json:"access_pattern"`
	BypassValidation bool          `json:"bypass_validation"`
}

// UserContext carries the caller's identity facts for one request. It is
// built from request fields, never persisted, and owned by the request.
type UserContext struct {
	Role         Role
	ScopingValue string
	Permissions  Permissions
}

// NewUserContext derives permissions from the role and fails fast on the
// preconditions: an unknown role and a customer without a scoping value are
// both request-validation errors, raised before generation starts.
func NewUserContext(role, scopingValue string) (*UserContext, error) {
	uc := &UserContext{Role: Role(role), ScopingValue: scopingValue}

	switch uc.Role {
	case RoleCustomer:
		uc.Permissions = Permissions{
			RequiresScoping: true,
			AccessPattern:   AccessSingleEntity,
		}
	case RoleAdmin:
		uc.Permissions = Permissions{
			RequiresScoping:  false,
			AccessPattern:    AccessAllEntities,
			BypassValidation: true,
		}
	default:
		return nil, apperrors.New(apperrors.AuthInvalidRole, fmt.Sprintf("role %q", role))
	}

	if uc.Permissions.RequiresScoping && uc.ScopingValue == "" {
		return nil, apperrors.New(apperrors.ValMissingScopingValue,
			fmt.Sprintf("role %q requires a scoping value", role))
	}
	return uc, nil
}

// NeedsScoping reports whether generated SQL must carry scoping predicates.
// An admin-supplied scoping value is honored as an optional filter, never
// asserted as mandatory.
func (uc *UserContext) NeedsScoping() bool {
	return uc.Permissions.RequiresScoping
}
