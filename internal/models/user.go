package models

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleTradie Role = "tradie"
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated identity behind a request.
type Actor struct {
	UserID        uuid.UUID
	Role          Role
	EmailVerified bool
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type User struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Role  Role      `db:"role" json:"role"`
	Name  string    `db:"name" json:"name"`
	Email string    `db:"email" json:"email"`
	Phone string    `db:"phone" json:"phone"`
}

// Job is a client job a quote can be attached to.
type Job struct {
	ID       uuid.UUID  `db:"id" json:"id"`
	ClientID uuid.UUID  `db:"client_id" json:"client_id"`
	TradieID *uuid.UUID `db:"tradie_id" json:"tradie_id,omitempty"`
	Title    string     `db:"title" json:"title"`
	Status   string     `db:"status" json:"status"`
}
