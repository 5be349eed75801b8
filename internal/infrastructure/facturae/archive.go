package facturae

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
)

// ManifestName nombre del índice dentro del ZIP.
const ManifestName = "cadena.json"

// ManifestEntry un eslabón en el índice del archivo.
type ManifestEntry struct {
	Seq                  int64     `json:"seq"`
	Kind                 string    `json:"kind"`
	InvoiceID            string    `json:"invoice_id"`
	AttestationID        string    `json:"attestation_id"`
	PreviousFingerprint  string    `json:"previous_fingerprint"`
	Fingerprint          string    `json:"fingerprint"`
	ReferenceFingerprint string    `json:"reference_fingerprint,omitempty"`
	Signed               bool      `json:"signed"`
	File                 string    `json:"file"`
	CreatedAt            time.Time `json:"created_at"`
}

// Manifest índice del archivo de la cadena.
type Manifest struct {
	IssuerTaxID string          `json:"issuer_tax_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Records     []ManifestEntry `json:"records"`
}

var nonAlnum = regexp.MustCompile(`[^0-9A-Za-z]`)

// RecordFilename nombre del XML de un eslabón: {NIF}_{seq}_{tipo}.xml
func RecordFilename(issuerTaxID string, rec *entity.AttestationRecord) string {
	return fmt.Sprintf("%s_%06d_%s.xml", nonAlnum.ReplaceAllString(issuerTaxID, ""), rec.Seq, rec.Kind)
}

// ChainArchive empaqueta en un ZIP en memoria el XML firmado de cada eslabón, en orden
// de seq, más el índice cadena.json.
func ChainArchive(issuerTaxID string, records []*entity.AttestationRecord, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := Manifest{IssuerTaxID: issuerTaxID, GeneratedAt: now.UTC(), Records: make([]ManifestEntry, 0, len(records))}
	for _, rec := range records {
		name := RecordFilename(issuerTaxID, rec)
		fw, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip: crear entrada %s: %w", name, err)
		}
		if _, err := fw.Write([]byte(rec.SignedXML)); err != nil {
			return nil, fmt.Errorf("zip: escribir %s: %w", name, err)
		}
		manifest.Records = append(manifest.Records, ManifestEntry{
			Seq:                  rec.Seq,
			Kind:                 rec.Kind,
			InvoiceID:            rec.InvoiceID,
			AttestationID:        rec.AttestationID,
			PreviousFingerprint:  rec.PreviousFingerprint,
			Fingerprint:          rec.Fingerprint,
			ReferenceFingerprint: rec.ReferenceFingerprint,
			Signed:               rec.Signed,
			File:                 name,
			CreatedAt:            rec.CreatedAt.UTC(),
		})
	}

	fw, err := zw.Create(ManifestName)
	if err != nil {
		return nil, fmt.Errorf("zip: crear índice: %w", err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("zip: escribir índice: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}
