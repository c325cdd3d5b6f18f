package domain

import "time"

type Role string

const (
	RoleUser   Role = "user"
	RoleDealer Role = "dealer"
	RoleAdmin  Role = "admin"
)

var roleLevels = map[Role]int{
	RoleUser:   1,
	RoleDealer: 2,
	RoleAdmin:  3,
}

// HasPermission reports whether r grants at least the permissions of required.
func (r Role) HasPermission(required Role) bool {
	return roleLevels[r] >= roleLevels[required] && roleLevels[r] > 0
}

// Profile is the local mirror of a user managed by the external identity provider.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the full name, falling back to the email address.
func (p *Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}
