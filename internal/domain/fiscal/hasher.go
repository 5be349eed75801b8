// Package fiscal contiene las reglas de dominio de la atestación: huella encadenada,
// identificador de atestación, validación por tipo de factura y máquina de estados.
package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// TimestampLayout formato fijo de las fechas dentro de la huella (UTC, precisión de segundos).
const TimestampLayout = "2006-01-02T15:04:05Z"

// fieldSeparator separa los campos concatenados antes de aplicar SHA-256.
const fieldSeparator = "|"

// shortFingerprintLen caracteres de la huella que se incluyen en el identificador.
const shortFingerprintLen = 8

// FingerprintInput campos de una factura que entran en la huella, en este orden:
// serie, número, fecha de expedición, base imponible, total, NIF del cliente, tipo y
// huella anterior.
type FingerprintInput struct {
	Series      string
	Number      string
	IssuedAt    time.Time
	TaxableBase decimal.Decimal
	TotalAmount decimal.Decimal
	ClientTaxID string
	InvoiceType string
}

// CancellationInput campos de un registro de anulación: marca "ANULACION", serie, número,
// fecha de anulación, huella del alta anulada y huella anterior.
type CancellationInput struct {
	Series               string
	Number               string
	CancelledAt          time.Time
	CancelledFingerprint string
}

// Hasher calcula huellas encadenadas e identificadores de atestación.
type Hasher interface {
	Fingerprint(in FingerprintInput, previous string) string
	CancellationFingerprint(in CancellationInput, previous string) string
	AttestationID(in FingerprintInput, fingerprint string) string
	CancellationID(in CancellationInput, fingerprint string) string
}

// SHA256Hasher implementación por defecto: SHA-256 en hexadecimal minúsculas.
type SHA256Hasher struct{}

var _ Hasher = SHA256Hasher{}

// NewInput extrae los campos de la huella de una factura.
func NewInput(inv *entity.Invoice, clientTaxID string) FingerprintInput {
	return FingerprintInput{
		Series:      inv.Series,
		Number:      inv.Number,
		IssuedAt:    inv.IssueDate,
		TaxableBase: inv.TaxableBase,
		TotalAmount: inv.TotalAmount,
		ClientTaxID: clientTaxID,
		InvoiceType: inv.Type,
	}
}

// CanonicalString cadena exacta sobre la que se calcula la huella.
func (in FingerprintInput) CanonicalString(previous string) string {
	return strings.Join([]string{
		in.Series,
		in.Number,
		FormatTimestamp(in.IssuedAt),
		in.TaxableBase.StringFixed(2),
		in.TotalAmount.StringFixed(2),
		in.ClientTaxID,
		in.InvoiceType,
		previous,
	}, fieldSeparator)
}

// CanonicalString cadena exacta sobre la que se calcula la huella de la anulación.
func (in CancellationInput) CanonicalString(previous string) string {
	return strings.Join([]string{
		"ANULACION",
		in.Series,
		in.Number,
		FormatTimestamp(in.CancelledAt),
		in.CancelledFingerprint,
		previous,
	}, fieldSeparator)
}

// Fingerprint huella de un alta.
func (SHA256Hasher) Fingerprint(in FingerprintInput, previous string) string {
	return sum(in.CanonicalString(previous))
}

// CancellationFingerprint huella de una anulación.
func (SHA256Hasher) CancellationFingerprint(in CancellationInput, previous string) string {
	return sum(in.CanonicalString(previous))
}

// AttestationID TBAI-<año>-<serie>-<número>-<código de tipo>-<8 primeros de la huella>.
func (SHA256Hasher) AttestationID(in FingerprintInput, fingerprint string) string {
	return fmt.Sprintf("TBAI-%04d-%s-%s-%s-%s",
		in.IssuedAt.UTC().Year(), in.Series, in.Number, TypeCode(in.InvoiceType), shortPrefix(fingerprint))
}

// CancellationID identificador del registro de anulación (código de tipo AN).
func (SHA256Hasher) CancellationID(in CancellationInput, fingerprint string) string {
	return fmt.Sprintf("TBAI-%04d-%s-%s-AN-%s",
		in.CancelledAt.UTC().Year(), in.Series, in.Number, shortPrefix(fingerprint))
}

// TypeCode código corto del tipo de factura en el identificador y en el XML.
func TypeCode(invoiceType string) string {
	switch invoiceType {
	case entity.InvoiceTypeOrdinary:
		return "F1"
	case entity.InvoiceTypeSimplified:
		return "F2"
	case entity.InvoiceTypeCorrective:
		return "R1"
	case entity.InvoiceTypeSummary:
		return "F4"
	default:
		return "XX"
	}
}

// FormatTimestamp fecha en UTC con el formato fijo de la huella.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ShortFingerprint prefijo en mayúsculas de la huella que va en el identificador de
// atestación y en los mensajes del verificador de cadena. El QR lleva un prefijo más
// largo, ver facturae.QRFingerprintLen.
func ShortFingerprint(fp string) string { return shortPrefix(fp) }

func shortPrefix(fp string) string {
	if len(fp) < shortFingerprintLen {
		return strings.ToUpper(fp)
	}
	return strings.ToUpper(fp[:shortFingerprintLen])
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
