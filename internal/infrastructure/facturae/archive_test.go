package facturae_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae"
)

func TestChainArchive_ContieneXMLEIndice(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []*entity.AttestationRecord{
		{Seq: 1, Kind: entity.RecordKindIssue, InvoiceID: "a", AttestationID: "TBAI-1", PreviousFingerprint: entity.GenesisFingerprint, Fingerprint: "f1", SignedXML: "<Factura>1</Factura>", Signed: true, CreatedAt: now},
		{Seq: 2, Kind: entity.RecordKindCancel, InvoiceID: "a", AttestationID: "TBAI-2", PreviousFingerprint: "f1", Fingerprint: "f2", ReferenceFingerprint: "f1", SignedXML: "<Anulacion/>", CreatedAt: now},
	}

	raw, err := facturae.ChainArchive("B-12345674", records, now)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(body)
	}

	assert.Equal(t, "<Factura>1</Factura>", files["B12345674_000001_alta.xml"])
	assert.Equal(t, "<Anulacion/>", files["B12345674_000002_anulacion.xml"])

	var m facturae.Manifest
	require.NoError(t, json.Unmarshal([]byte(files[facturae.ManifestName]), &m))
	assert.Equal(t, "B-12345674", m.IssuerTaxID)
	require.Len(t, m.Records, 2)
	assert.Equal(t, "f1", m.Records[1].ReferenceFingerprint)
	assert.Equal(t, "B12345674_000002_anulacion.xml", m.Records[1].File)
}

func TestChainArchive_CadenaVacia(t *testing.T) {
	raw, err := facturae.ChainArchive("B12345674", nil, time.Now())
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, facturae.ManifestName, zr.File[0].Name)
}
