package signer

import (
	"github.com/jhoicas/facturae-api/pkg/fiscal"
	"github.com/rs/zerolog"
)

// StoreSigner implementa fiscal.Signer con el certificado vigente del almacén. Cada firma
// toma una única instantánea del Handle, de modo que una rotación concurrente nunca
// mezcla certificado y llave.
type StoreSigner struct {
	store *CertificateStore
	svc   *DigitalSignatureService
	log   zerolog.Logger
}

var _ fiscal.Signer = (*StoreSigner)(nil)

// NewStoreSigner construye el firmador.
func NewStoreSigner(store *CertificateStore, svc *DigitalSignatureService, log zerolog.Logger) *StoreSigner {
	return &StoreSigner{store: store, svc: svc, log: log}
}

// Sign firma con el certificado vigente. En modo sin firma devuelve el documento sin
// modificar y Signed=false.
func (s *StoreSigner) Sign(doc []byte) (*fiscal.SignResult, error) {
	h := s.store.Current()
	if h == nil {
		if !s.store.Unsigned() {
			return nil, ErrUnsignedMode
		}
		s.log.Warn().Msg("documento emitido SIN FIRMA (modo de pruebas)")
		return &fiscal.SignResult{Document: doc, Signed: false}, nil
	}
	return s.svc.Sign(doc, h)
}

// Verify comprueba la firma contra los certificados del almacén: el vigente o uno cargado
// antes de una rotación. Un documento re-firmado con un certificado ajeno no verifica,
// aunque su firma sea coherente con el certificado que trae embebido.
func (s *StoreSigner) Verify(doc []byte) (bool, error) {
	cert, err := EmbeddedCertificate(doc)
	if err != nil || cert == nil {
		return false, err
	}
	if !s.store.Trusts(cert) {
		s.log.Warn().
			Str("serial", cert.SerialNumber.Text(16)).
			Str("subject", cert.Subject.String()).
			Msg("firma con un certificado que no pertenece al almacén")
		return false, nil
	}
	return s.svc.Verify(doc, &Handle{Certificate: cert})
}

// Store almacén subyacente.
func (s *StoreSigner) Store() *CertificateStore { return s.store }
