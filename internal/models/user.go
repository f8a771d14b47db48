package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID        string    `json:"user_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	VendorID  string    `json:"vendor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is whoever performs an operation, as established by the session.
type Actor struct {
	UserID   string
	Role     Role
	VendorID string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsVendor is true for vendor accounts linked to a vendor.
func (a Actor) IsVendor() bool { return a.Role == RoleVendor && a.VendorID != "" }

func (u User) Actor() Actor {
	return Actor{UserID: u.ID, Role: u.Role, VendorID: u.VendorID}
}
