package signer_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
	"github.com/jhoicas/facturae-api/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<Factura Id="factura" xmlns="urn:facturae-api:atestacion:1.2">
  <IdentificacionFactura>
    <Serie>FACT</Serie>
    <Numero>0001</Numero>
  </IdentificacionFactura>
  <Totales>
    <ImporteTotal>1210.00</ImporteTotal>
  </Totales>
</Factura>`

var signingClock = time.Date(2026, 3, 10, 9, 15, 30, 123_000_000, time.UTC)

func newHandle(t *testing.T) *signer.Handle {
	t.Helper()
	cert, key := testutil.NewRSACertificate(t, signingClock.AddDate(0, -1, 0), signingClock.AddDate(1, 0, 0))
	h, err := signer.NewHandle(cert, key)
	require.NoError(t, err)
	return h
}

func newService() *signer.DigitalSignatureService {
	return signer.NewDigitalSignatureService(func() time.Time { return signingClock })
}

func TestSign_VerificaLaFirmaGenerada(t *testing.T) {
	h := newHandle(t)
	svc := newService()

	res, err := svc.Sign([]byte(sampleDoc), h)
	require.NoError(t, err)
	assert.True(t, res.Signed)
	assert.Equal(t, signingClock, res.SignedAt)
	assert.Contains(t, string(res.Document), "<ds:Signature")
	assert.Contains(t, string(res.Document), "2026-03-10T09:15:30.123Z")

	ok, err := svc.Verify(res.Document, h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyEmbedded(res.Document)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSign_FirmaEnvueltaAlFinalDeLaRaiz(t *testing.T) {
	res, err := newService().Sign([]byte(sampleDoc), newHandle(t))
	require.NoError(t, err)
	doc := string(res.Document)
	assert.True(t, strings.HasPrefix(doc, "<Factura"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(doc), "</ds:Signature></Factura>"))
	assert.Contains(t, res.SignatureBlock, `URI="#factura"`)
	assert.Contains(t, res.SignatureBlock, `URI="#signed-props"`)
}

func TestVerify_RecargadoDesdeAlmacenamiento(t *testing.T) {
	h := newHandle(t)
	res, err := newService().Sign([]byte(sampleDoc), h)
	require.NoError(t, err)

	stored := string(res.Document)
	// Un servicio nuevo, sin estado compartido con el que firmó.
	ok, err := signer.NewDigitalSignatureService(nil).Verify([]byte(stored), h)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_ContenidoManipulado(t *testing.T) {
	h := newHandle(t)
	svc := newService()
	res, err := svc.Sign([]byte(sampleDoc), h)
	require.NoError(t, err)

	tampered := strings.Replace(string(res.Document), "1210.00", "1210.01", 1)
	require.NotEqual(t, string(res.Document), tampered)

	ok, err := svc.Verify([]byte(tampered), h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_SigningTimeManipulado(t *testing.T) {
	h := newHandle(t)
	svc := newService()
	res, err := svc.Sign([]byte(sampleDoc), h)
	require.NoError(t, err)

	tampered := strings.Replace(string(res.Document), "2026-03-10T09:15:30.123Z", "2026-03-11T09:15:30.123Z", 1)
	ok, err := svc.Verify([]byte(tampered), h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_OtroCertificado(t *testing.T) {
	svc := newService()
	res, err := svc.Sign([]byte(sampleDoc), newHandle(t))
	require.NoError(t, err)

	ok, err := svc.Verify(res.Document, newHandle(t))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_DocumentoSinFirma(t *testing.T) {
	ok, err := newService().Verify([]byte(sampleDoc), newHandle(t))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_EntradaMalFormada(t *testing.T) {
	h := newHandle(t)
	for _, in := range []string{"", "   ", "<Factura><sin-cerrar>", "no es xml"} {
		_, err := newService().Verify([]byte(in), h)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, domain.ErrSignature))
	}
}

func TestSign_CertificadoCaducado(t *testing.T) {
	cert, key := testutil.NewRSACertificate(t, signingClock.AddDate(-2, 0, 0), signingClock.AddDate(-1, 0, 0))
	h, err := signer.NewHandle(cert, key)
	require.NoError(t, err)

	_, err = newService().Sign([]byte(sampleDoc), h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSignature))
}

func TestSign_DocumentoYaFirmado(t *testing.T) {
	h := newHandle(t)
	res, err := newService().Sign([]byte(sampleDoc), h)
	require.NoError(t, err)
	_, err = newService().Sign(res.Document, h)
	assert.True(t, errors.Is(err, domain.ErrSignature))
}

func TestSigningTimeYBloqueDeFirma(t *testing.T) {
	res, err := newService().Sign([]byte(sampleDoc), newHandle(t))
	require.NoError(t, err)

	ts, err := signer.SigningTime(res.Document)
	require.NoError(t, err)
	assert.True(t, ts.Equal(signingClock))

	block, err := signer.ExtractSignatureBlock(res.Document)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(block, "<ds:Signature"))
}

func TestStoreSigner_RotacionConcurrente(t *testing.T) {
	now := time.Now()
	store, err := signer.NewCertificateStore(newHandleAt(t, now))
	require.NoError(t, err)
	s := signer.NewStoreSigner(store, signer.NewDigitalSignatureService(nil), zerolog.Nop())

	spare := make([]*signer.Handle, 3)
	for i := range spare {
		spare[i] = newHandleAt(t, now)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, h := range spare {
			assert.NoError(t, store.Rotate(h))
		}
	}()
	results := make(chan []byte, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Sign([]byte(sampleDoc))
			if assert.NoError(t, err) {
				results <- res.Document
			}
		}()
	}
	wg.Wait()
	close(results)

	for doc := range results {
		ok, err := s.Verify(doc)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestStoreSigner_ModoSinFirma(t *testing.T) {
	s := signer.NewStoreSigner(signer.NewUnsignedStore(), signer.NewDigitalSignatureService(nil), zerolog.Nop())
	res, err := s.Sign([]byte(sampleDoc))
	require.NoError(t, err)
	assert.False(t, res.Signed)
	assert.Equal(t, sampleDoc, string(res.Document))
	assert.Empty(t, res.SignatureBlock)
}

func TestStoreSigner_CertificadoAjenoNoVerifica(t *testing.T) {
	store, err := signer.NewCertificateStore(newHandleAt(t, time.Now()))
	require.NoError(t, err)
	s := signer.NewStoreSigner(store, signer.NewDigitalSignatureService(nil), zerolog.Nop())

	own, err := s.Sign([]byte(sampleDoc))
	require.NoError(t, err)
	ok, err := s.Verify(own.Document)
	require.NoError(t, err)
	assert.True(t, ok)

	// mismo documento con el total alterado y firmado con otro certificado
	altered := strings.Replace(sampleDoc, "1210.00", "9999.00", 1)
	forged, err := signer.NewDigitalSignatureService(nil).Sign([]byte(altered), newHandleAt(t, time.Now()))
	require.NoError(t, err)

	coherent, err := signer.NewDigitalSignatureService(nil).VerifyEmbedded(forged.Document)
	require.NoError(t, err)
	assert.True(t, coherent, "la firma es coherente con el certificado que trae")

	ok, err = s.Verify(forged.Document)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSigner_CertificadoRotadoSigueVerificando(t *testing.T) {
	store, err := signer.NewCertificateStore(newHandleAt(t, time.Now()))
	require.NoError(t, err)
	s := signer.NewStoreSigner(store, signer.NewDigitalSignatureService(nil), zerolog.Nop())

	old, err := s.Sign([]byte(sampleDoc))
	require.NoError(t, err)
	require.NoError(t, store.Rotate(newHandleAt(t, time.Now())))

	ok, err := s.Verify(old.Document)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreSigner_DocumentoSinFirmaOIlegible(t *testing.T) {
	store, err := signer.NewCertificateStore(newHandleAt(t, time.Now()))
	require.NoError(t, err)
	s := signer.NewStoreSigner(store, signer.NewDigitalSignatureService(nil), zerolog.Nop())

	ok, err := s.Verify([]byte(sampleDoc))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Verify([]byte("<Factura><sin-cerrar>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSignature))
}

func newHandleAt(t *testing.T, now time.Time) *signer.Handle {
	t.Helper()
	cert, key := testutil.NewRSACertificate(t, now.Add(-time.Hour), now.AddDate(1, 0, 0))
	h, err := signer.NewHandle(cert, key)
	require.NoError(t, err)
	return h
}
