package model

import (
	"time"
)

// User role constants
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// User maps a wallet-style address to a role. Users are created on first
// registration and immutable afterwards. Address uniqueness and all
// comparisons are case-insensitive.
type User struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterUserRequest struct {
	Address string `json:"address" binding:"required,walletaddr"`
	Role    string `json:"role" binding:"required,oneof=patient doctor"`
}

type CheckAddressResponse struct {
	Exists bool   `json:"exists"`
	Role   string `json:"role,omitempty"`
}
