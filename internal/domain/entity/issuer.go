package entity

import "time"

// Issuer representa al obligado tributario que emite facturas. Cada emisor tiene una
// única cadena de atestación.
type Issuer struct {
	ID         string
	Name       string
	TaxID      string // NIF del emisor
	Address    string
	PostalCode string
	City       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
