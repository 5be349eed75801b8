package entity

import "time"

// Tipos de registro encadenado.
const (
	RecordKindIssue  = "alta"      // emisión de una factura
	RecordKindCancel = "anulacion" // anulación de una factura emitida
)

// GenesisFingerprint valor fijo de "huella anterior" del primer registro de cada cadena.
const GenesisFingerprint = "0000000000000000000000000000000000000000000000000000000000000000"

// AttestationRecord es un eslabón de la cadena de un emisor. Solo se añaden; nunca se
// modifican ni se borran.
type AttestationRecord struct {
	ID                  string
	IssuerID            string
	InvoiceID           string
	Seq                 int64  // posición en la cadena, empezando en 1
	Kind                string // alta | anulacion
	PreviousFingerprint string
	Fingerprint         string
	// Huella del registro de alta anulado; solo en anulaciones.
	ReferenceFingerprint string
	AttestationID        string
	SignedXML            string
	Signed               bool
	SignedAt             *time.Time
	CreatedAt            time.Time
}

// ChainHead último eslabón conocido de la cadena de un emisor. La fila se bloquea
// durante la emisión para serializar el acceso a la cadena.
type ChainHead struct {
	IssuerID        string
	LastSeq         int64
	LastFingerprint string
	UpdatedAt       time.Time
}

// NewChainHead cabecera vacía apuntando al génesis.
func NewChainHead(issuerID string) *ChainHead {
	return &ChainHead{IssuerID: issuerID, LastFingerprint: GenesisFingerprint}
}
