package entity

import "time"

// Roles válidos para User.
const (
	RoleAdmin   = "admin"
	RoleBilling = "facturador"
	RoleAuditor = "auditor"
)

// Estados de User.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// ValidRole indica si r es un rol reconocido.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleBilling, RoleAuditor:
		return true
	}
	return false
}

// User representa un usuario del sistema. Pertenece a un único emisor y solo opera
// sobre su cadena.
type User struct {
	ID           string
	IssuerID     string
	Email        string
	PasswordHash string // bcrypt hash, nunca plano en dominio después de persistir
	Name         string
	Role         string // admin, facturador, auditor
	Status       string // active, disabled
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
