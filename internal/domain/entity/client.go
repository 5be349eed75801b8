package entity

import "time"

// Client representa un cliente (destinatario) de un emisor.
// Una vez referenciado por una factura emitida no debe modificarse.
type Client struct {
	ID         string
	IssuerID   string
	Name       string
	TaxID      string // NIF/NIE/CIF (España)
	Address    string
	PostalCode string
	City       string
	Country    string // ISO 3166-1 alfa-2
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
