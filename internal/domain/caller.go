package domain

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleAudience  Role = "audience"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleOrganizer, RoleAudience:
		return r, nil
	}
	return "", Validationf("invalid role %q", s)
}

// Caller is the authenticated identity every core operation acts on behalf of.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

// SystemCaller is used by scheduled jobs.
var SystemCaller = Caller{UserID: uuid.Nil, Role: RoleAdmin}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Caller) Validate() error {
	if c.Role == "" {
		return Forbiddenf("caller identity is required")
	}
	if c.UserID == uuid.Nil && c != SystemCaller {
		return Forbiddenf("caller identity is required")
	}
	return nil
}

// Require fails unless the caller holds one of roles.
func (c Caller) Require(roles ...Role) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, r := range roles {
		if c.Role == r {
			return nil
		}
	}
	return Forbiddenf("role %s is not allowed to perform this action", c.Role)
}

// Owns reports whether the caller may act on a resource owned by ownerID.
func (c Caller) Owns(ownerID uuid.UUID) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsAdmin() || c.UserID == ownerID {
		return nil
	}
	return Forbiddenf("only the owner may perform this action")
}
