package auth

import "time"

// Member represents a saver account holder. Roles hold the JWT role
// names granted to the member, never anything requested by a client.
type Member struct {
	ID           string
	Email        string
	Phone        string
	PasswordHash string
	Status       string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
