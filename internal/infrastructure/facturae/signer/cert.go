// Carga, validación y rotación del certificado de firma (.p12/.pfx o par PEM).

package signer

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/pkg/config"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/pkcs12"
)

// Handle certificado y llave privada cargados. Inmutable: la rotación sustituye el Handle
// completo, nunca sus campos.
type Handle struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// Info metadatos de solo lectura del certificado.
type Info struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	KeyAlgorithm string    `json:"key_algorithm"`
	KeySize      int       `json:"key_size"`
}

// ValidityReport estado de vigencia. "Aún no válido" y "caducado" son ambos no vigentes.
type ValidityReport struct {
	CurrentlyValid  bool `json:"currently_valid"`
	DaysUntilExpiry int  `json:"days_until_expiry"`
	NotYetValid     bool `json:"not_yet_valid"`
	Expired         bool `json:"expired"`
	ExpiringSoon    bool `json:"expiring_soon"`
}

// NewHandle comprueba que la llave sea RSA y corresponda al certificado.
func NewHandle(cert *x509.Certificate, key any) (*Handle, error) {
	if cert == nil {
		return nil, domain.NewSignatureError("SIGN010", "certificado ausente", nil)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, domain.NewSignatureError("SIGN011", "la llave privada debe ser RSA", nil)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !priv.PublicKey.Equal(pub) {
		return nil, domain.NewSignatureError("SIGN012", "la llave privada no corresponde al certificado", nil)
	}
	return &Handle{Certificate: cert, PrivateKey: priv}, nil
}

// Info extrae los metadatos del certificado.
func (h *Handle) Info() Info {
	c := h.Certificate
	return Info{
		Subject:      c.Subject.String(),
		Issuer:       c.Issuer.String(),
		SerialNumber: c.SerialNumber.Text(16),
		NotBefore:    c.NotBefore.UTC(),
		NotAfter:     c.NotAfter.UTC(),
		KeyAlgorithm: c.PublicKeyAlgorithm.String(),
		KeySize:      h.PrivateKey.N.BitLen(),
	}
}

// Validate evalúa la vigencia en el instante now.
func (h *Handle) Validate(now time.Time) ValidityReport {
	c := h.Certificate
	r := ValidityReport{
		NotYetValid: now.Before(c.NotBefore),
		Expired:     now.After(c.NotAfter),
	}
	r.CurrentlyValid = !r.NotYetValid && !r.Expired
	r.DaysUntilExpiry = int(math.Floor(c.NotAfter.Sub(now).Hours() / 24))
	r.ExpiringSoon = r.CurrentlyValid && r.DaysUntilExpiry < ExpiryWarningDays
	return r
}

// Load carga un certificado desde .p12/.pfx (keyPath se ignora) o desde PEM
// (keyPath vacío: llave en el mismo archivo). Rutas ausentes o ilegibles devuelven
// ConfigurationError; llave ilegible o que no corresponde, SignatureError.
func Load(certPath, keyPath, password string) (*Handle, error) {
	if certPath == "" {
		return nil, domain.NewConfigurationError("CONF010", "ruta de certificado no configurada", nil)
	}
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, domain.NewConfigurationError("CONF011", "no se pudo leer el certificado", err)
	}
	switch strings.ToLower(filepath.Ext(certPath)) {
	case ".p12", ".pfx":
		return LoadP12(certData, password)
	}
	keyData := certData
	if keyPath != "" && keyPath != certPath {
		keyData, err = os.ReadFile(keyPath)
		if err != nil {
			return nil, domain.NewConfigurationError("CONF012", "no se pudo leer la llave privada", err)
		}
	}
	return LoadPEM(certData, keyData)
}

// LoadP12 decodifica un contenedor PKCS#12 con un único certificado.
func LoadP12(data []byte, password string) (*Handle, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN013", "no se pudo decodificar el contenedor p12", err)
	}
	return NewHandle(cert, priv)
}

// LoadPEM carga un par certificado/llave en PEM.
func LoadPEM(certPEM, keyPEM []byte) (*Handle, error) {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN014", "par certificado/llave PEM no válido", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, domain.NewSignatureError("SIGN015", "no se pudo parsear el certificado", err)
	}
	return NewHandle(leaf, pair.PrivateKey)
}

// CertDigestAndIssuerSerial devuelve el digest SHA-256 del certificado (Base64), el emisor
// y el serial para XAdES.
func CertDigestAndIssuerSerial(cert *x509.Certificate) (digestB64 string, issuerName string, serial string) {
	h := sha256.Sum256(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(h[:])
	issuerName = cert.Issuer.String()
	serial = cert.SerialNumber.String()
	return digestB64, issuerName, serial
}

// ErrUnsignedMode se devuelve al pedir datos del certificado en modo sin firma.
var ErrUnsignedMode = domain.NewConfigurationError("CONF013", "modo sin firma: no hay certificado cargado", nil)

// CertificateStore mantiene el certificado vigente. Lecturas concurrentes sin bloqueo;
// la rotación intercambia el Handle completo de forma atómica.
type CertificateStore struct {
	current  atomic.Pointer[Handle]
	unsigned bool
	now      func() time.Time
	log      zerolog.Logger

	// certificados cargados alguna vez, por digest SHA-256 en base64
	mu      sync.RWMutex
	trusted map[string]*x509.Certificate
}

// StoreOption configura el almacén.
type StoreOption func(*CertificateStore)

// WithClock reloj inyectable (tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *CertificateStore) { s.now = now }
}

// WithLogger logger del almacén.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *CertificateStore) { s.log = l }
}

// NewCertificateStore almacén con un certificado ya cargado.
func NewCertificateStore(h *Handle, opts ...StoreOption) (*CertificateStore, error) {
	if h == nil {
		return nil, domain.NewConfigurationError("CONF010", "certificado no configurado", nil)
	}
	s := newStore(opts...)
	if err := s.Rotate(h); err != nil {
		return nil, err
	}
	return s, nil
}

// NewUnsignedStore almacén en modo de pruebas: los documentos no se firman. Se registra
// siempre con nivel WARN.
func NewUnsignedStore(opts ...StoreOption) *CertificateStore {
	s := newStore(opts...)
	s.unsigned = true
	s.log.Warn().Msg("MODO SIN FIRMA activo: las facturas se emitirán sin firma electrónica")
	return s
}

// NewStoreFromConfig carga el certificado de la configuración. Sin ruta de certificado solo
// arranca si el modo sin firma está permitido explícitamente.
func NewStoreFromConfig(cfg config.SigningConfig, opts ...StoreOption) (*CertificateStore, error) {
	if cfg.CertPath == "" {
		if cfg.AllowUnsigned {
			return NewUnsignedStore(opts...), nil
		}
		return nil, domain.NewConfigurationError("CONF002",
			"no hay certificado de firma configurado y el modo sin firma no está permitido", nil)
	}
	h, err := Load(cfg.CertPath, cfg.KeyPath, cfg.Password)
	if err != nil {
		return nil, err
	}
	return NewCertificateStore(h, opts...)
}

func newStore(opts ...StoreOption) *CertificateStore {
	s := &CertificateStore{now: time.Now, log: zerolog.Nop(), trusted: map[string]*x509.Certificate{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current Handle vigente, o nil en modo sin firma.
func (s *CertificateStore) Current() *Handle {
	return s.current.Load()
}

// Unsigned indica si el almacén está en modo sin firma.
func (s *CertificateStore) Unsigned() bool {
	return s.unsigned && s.current.Load() == nil
}

// Info metadatos del certificado vigente.
func (s *CertificateStore) Info() (Info, error) {
	h := s.current.Load()
	if h == nil {
		return Info{}, ErrUnsignedMode
	}
	return h.Info(), nil
}

// Validate vigencia del certificado actual.
func (s *CertificateStore) Validate() (ValidityReport, error) {
	h := s.current.Load()
	if h == nil {
		return ValidityReport{}, ErrUnsignedMode
	}
	r := h.Validate(s.now())
	if r.ExpiringSoon {
		s.log.Warn().Int("days_until_expiry", r.DaysUntilExpiry).Msg("el certificado de firma caduca pronto")
	}
	return r, nil
}

// Rotate sustituye el certificado. Rechaza certificados no vigentes con SignatureError;
// en ese caso el certificado anterior sigue activo.
func (s *CertificateStore) Rotate(h *Handle) error {
	if h == nil || h.Certificate == nil || h.PrivateKey == nil {
		return domain.NewSignatureError("SIGN016", "certificado de rotación incompleto", nil)
	}
	checked, err := NewHandle(h.Certificate, h.PrivateKey)
	if err != nil {
		return err
	}
	r := checked.Validate(s.now())
	if !r.CurrentlyValid {
		reason := "caducado"
		if r.NotYetValid {
			reason = "aún no válido"
		}
		return domain.NewSignatureError("SIGN017", "certificado de rotación "+reason, nil)
	}
	digest, _, _ := CertDigestAndIssuerSerial(checked.Certificate)
	s.mu.Lock()
	s.trusted[digest] = checked.Certificate
	s.mu.Unlock()
	s.current.Store(checked)
	s.log.Info().
		Str("serial", checked.Certificate.SerialNumber.Text(16)).
		Time("not_after", checked.Certificate.NotAfter).
		Int("days_until_expiry", r.DaysUntilExpiry).
		Msg("certificado de firma activo")
	if r.ExpiringSoon {
		s.log.Warn().Int("days_until_expiry", r.DaysUntilExpiry).Msg("el certificado de firma caduca pronto")
	}
	return nil
}

// Trusts indica si cert es el vigente o uno de los cargados antes de una rotación.
// Compara el digest del certificado completo, no solo la llave.
func (s *CertificateStore) Trusts(cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}
	digest, _, _ := CertDigestAndIssuerSerial(cert)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trusted[digest]
	return ok
}

// RotateFromFiles carga y rota en un solo paso.
func (s *CertificateStore) RotateFromFiles(certPath, keyPath, password string) error {
	h, err := Load(certPath, keyPath, password)
	if err != nil {
		return err
	}
	return s.Rotate(h)
}
