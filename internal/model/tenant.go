package model

import "time"

// Tenant is an organizational scope.  Managers are bound to exactly one tenant.
type Tenant struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
