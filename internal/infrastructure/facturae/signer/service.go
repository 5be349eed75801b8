// Servicio de firma digital XAdES envuelta: ds:Signature se añade como último hijo del
// elemento raíz del documento firmado.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/pkg/fiscal"
	"github.com/ucarion/c14n"
)

// DigitalSignatureService firma y verifica documentos con un Handle concreto.
// No guarda estado entre llamadas: la verificación solo usa el documento y la llave pública.
type DigitalSignatureService struct {
	now func() time.Time
}

// NewDigitalSignatureService crea el servicio. now puede ser nil (reloj del sistema).
func NewDigitalSignatureService(now func() time.Time) *DigitalSignatureService {
	if now == nil {
		now = time.Now
	}
	return &DigitalSignatureService{now: now}
}

// Sign firma el documento con h. El instante de firma queda registrado en
// xades:SigningTime y se devuelve en SignResult.SignedAt.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, h *Handle) (*fiscal.SignResult, error) {
	if len(bytes.TrimSpace(xmlBytes)) == 0 {
		return nil, domain.NewSignatureError("SIGN001", "documento vacío", nil)
	}
	if h == nil || h.PrivateKey == nil || h.Certificate == nil {
		return nil, domain.NewSignatureError("SIGN002", "certificado de firma no disponible", nil)
	}
	signedAt := s.now().UTC().Truncate(time.Millisecond)
	if r := h.Validate(signedAt); !r.CurrentlyValid {
		return nil, domain.NewSignatureError("SIGN002", "certificado de firma fuera de vigencia", nil)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, domain.NewSignatureError("SIGN003", "XML mal formado", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, domain.NewSignatureError("SIGN003", "documento sin raíz", nil)
	}
	if findSignature(root) != nil {
		return nil, domain.NewSignatureError("SIGN004", "el documento ya está firmado", nil)
	}
	rootID := root.SelectAttrValue("Id", "")
	if rootID == "" {
		return nil, domain.NewSignatureError("SIGN005", "el elemento raíz no tiene atributo Id", nil)
	}

	// 1) Digest del documento (transformación enveloped + C14N).
	canonicalDoc, err := canonicalDocument(root)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN006", "canonicalizar documento", err)
	}
	docDigest := digestB64(canonicalDoc)

	// 2) SignedProperties (SigningTime, SigningCertificate).
	certDigest, issuerName, serial := CertDigestAndIssuerSerial(h.Certificate)
	signedPropsXML := buildSignedProperties(signedAt.Format(SigningTimeLayout), certDigest, issuerName, serial)
	propsEl, err := parseFragment(signedPropsXML)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN006", "construir SignedProperties", err)
	}
	canonicalProps, err := canonicalElement(propsEl)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN006", "canonicalizar SignedProperties", err)
	}

	// 3) SignedInfo y SignatureValue (RSA-SHA256 PKCS#1 v1.5).
	signedInfoXML := buildSignedInfo(rootID, docDigest, digestB64(canonicalProps))
	infoEl, err := parseFragment(signedInfoXML)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN006", "construir SignedInfo", err)
	}
	canonicalInfo, err := canonicalElement(infoEl)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN006", "canonicalizar SignedInfo", err)
	}
	hash := sha256.Sum256(canonicalInfo)
	sigValue, err := rsa.SignPKCS1v15(nil, h.PrivateKey, crypto.SHA256, hash[:])
	if err != nil {
		return nil, domain.NewSignatureError("SIGN007", "firmar SignedInfo", err)
	}

	// 4) Ensamblar ds:Signature y añadirla al final de la raíz.
	signatureXML := buildFullSignature(signedInfoXML, base64.StdEncoding.EncodeToString(sigValue),
		base64.StdEncoding.EncodeToString(h.Certificate.Raw), signedPropsXML)
	sigEl, err := parseFragment(signatureXML)
	if err != nil {
		return nil, domain.NewSignatureError("SIGN006", "construir Signature", err)
	}
	root.AddChild(sigEl)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, domain.NewSignatureError("SIGN008", "serializar documento firmado", err)
	}
	return &fiscal.SignResult{
		Document:       out,
		SignatureBlock: signatureXML,
		SignedAt:       signedAt,
		Signed:         true,
	}, nil
}

// Verify comprueba la firma con la llave pública de h. Devuelve false si la firma no existe
// o no coincide; error solo si el documento está vacío o no es XML.
func (s *DigitalSignatureService) Verify(xmlBytes []byte, h *Handle) (bool, error) {
	if h == nil || h.Certificate == nil {
		return false, domain.NewSignatureError("SIGN009", "certificado de verificación no disponible", nil)
	}
	pub, ok := h.Certificate.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false, domain.NewSignatureError("SIGN011", "la llave pública debe ser RSA", nil)
	}
	return verify(xmlBytes, pub)
}

// VerifyEmbedded comprueba la firma con el certificado incluido en ds:KeyInfo. Solo prueba
// la integridad del documento: quien lo haya re-firmado con otro certificado también pasa.
// Para atestar el origen usar StoreSigner.Verify.
func (s *DigitalSignatureService) VerifyEmbedded(xmlBytes []byte) (bool, error) {
	return verify(xmlBytes, nil)
}

// EmbeddedCertificate certificado de ds:KeyInfo. Devuelve nil sin error si el documento no
// está firmado.
func EmbeddedCertificate(xmlBytes []byte) (*x509.Certificate, error) {
	if len(bytes.TrimSpace(xmlBytes)) == 0 {
		return nil, domain.NewSignatureError("SIGN020", "documento vacío", nil)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, domain.NewSignatureError("SIGN021", "XML mal formado", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, domain.NewSignatureError("SIGN021", "documento sin raíz", nil)
	}
	sig := findSignature(root)
	if sig == nil {
		return nil, nil
	}
	return embeddedCertificate(sig), nil
}

func verify(xmlBytes []byte, pub *rsa.PublicKey) (bool, error) {
	if len(bytes.TrimSpace(xmlBytes)) == 0 {
		return false, domain.NewSignatureError("SIGN020", "documento vacío", nil)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return false, domain.NewSignatureError("SIGN021", "XML mal formado", err)
	}
	root := doc.Root()
	if root == nil {
		return false, domain.NewSignatureError("SIGN021", "documento sin raíz", nil)
	}
	sig := findSignature(root)
	if sig == nil {
		return false, nil
	}
	info := childNS(sig, NamespaceDS, "SignedInfo")
	sigValueEl := childNS(sig, NamespaceDS, "SignatureValue")
	if info == nil || sigValueEl == nil {
		return false, nil
	}

	// Certificado embebido y su digest en SigningCertificate.
	embedded := embeddedCertificate(sig)
	if embedded == nil {
		return false, nil
	}
	props := findSignedProperties(sig)
	if props == nil {
		return false, nil
	}
	wantCertDigest, _, _ := CertDigestAndIssuerSerial(embedded)
	if certDigest := props.FindElement(".//xades:CertDigest/ds:DigestValue"); certDigest == nil ||
		strings.TrimSpace(certDigest.Text()) != wantCertDigest {
		return false, nil
	}
	if pub == nil {
		var ok bool
		if pub, ok = embedded.PublicKey.(*rsa.PublicKey); !ok {
			return false, nil
		}
	}

	// References: documento y SignedProperties.
	rootID := root.SelectAttrValue("Id", "")
	refs := 0
	for _, ref := range info.ChildElements() {
		if ref.NamespaceURI() != NamespaceDS || ref.Tag != "Reference" {
			continue
		}
		refs++
		dv := childNS(ref, NamespaceDS, "DigestValue")
		if dv == nil {
			return false, nil
		}
		var canonical []byte
		var err error
		switch uri := ref.SelectAttrValue("URI", ""); {
		case rootID != "" && uri == "#"+rootID:
			canonical, err = canonicalDocument(root)
		case uri == "#"+props.SelectAttrValue("Id", ""):
			canonical, err = canonicalElement(props)
		default:
			return false, nil
		}
		if err != nil {
			return false, nil
		}
		if digestB64(canonical) != strings.TrimSpace(dv.Text()) {
			return false, nil
		}
	}
	if refs != 2 {
		return false, nil
	}

	canonicalInfo, err := canonicalElement(info)
	if err != nil {
		return false, nil
	}
	sigValue, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValueEl.Text()))
	if err != nil {
		return false, nil
	}
	hash := sha256.Sum256(canonicalInfo)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], sigValue) == nil, nil
}

// SigningTime lee xades:SigningTime de un documento firmado.
func SigningTime(xmlBytes []byte) (time.Time, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return time.Time{}, domain.NewSignatureError("SIGN021", "XML mal formado", err)
	}
	if doc.Root() == nil {
		return time.Time{}, domain.NewSignatureError("SIGN021", "documento sin raíz", nil)
	}
	el := doc.Root().FindElement(".//xades:SigningTime")
	if el == nil {
		return time.Time{}, domain.NewSignatureError("SIGN022", "documento sin SigningTime", nil)
	}
	return time.Parse(SigningTimeLayout, strings.TrimSpace(el.Text()))
}

// ExtractSignatureBlock devuelve el nodo ds:Signature serializado, o "" si no hay firma.
func ExtractSignatureBlock(xmlBytes []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return "", domain.NewSignatureError("SIGN021", "XML mal formado", err)
	}
	if doc.Root() == nil {
		return "", nil
	}
	sig := findSignature(doc.Root())
	if sig == nil {
		return "", nil
	}
	out := etree.NewDocument()
	out.SetRoot(sig.Copy())
	return out.WriteToString()
}

// canonicalDocument aplica la transformación enveloped (quita ds:Signature de la raíz)
// y canonicaliza.
func canonicalDocument(root *etree.Element) ([]byte, error) {
	cp := root.Copy()
	for _, child := range cp.ChildElements() {
		if isSignature(child) {
			cp.RemoveChild(child)
		}
	}
	return canonicalElement(cp)
}

// canonicalElement serializa el elemento como documento independiente y aplica C14N.
// Firma y verificación usan exactamente esta función.
func canonicalElement(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizeXML(raw)
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func parseFragment(s string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("fragmento sin raíz")
	}
	return doc.Root(), nil
}

func digestB64(data []byte) string {
	h := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(h[:])
}

func isSignature(el *etree.Element) bool {
	return el.Tag == "Signature" && el.NamespaceURI() == NamespaceDS
}

func findSignature(root *etree.Element) *etree.Element {
	for _, child := range root.ChildElements() {
		if isSignature(child) {
			return child
		}
	}
	return nil
}

func childNS(parent *etree.Element, ns, local string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == local && child.NamespaceURI() == ns {
			return child
		}
	}
	return nil
}

func findSignedProperties(sig *etree.Element) *etree.Element {
	for _, el := range sig.FindElements(".//xades:SignedProperties") {
		if el.SelectAttrValue("Id", "") == SignedPropsID {
			return el
		}
	}
	return nil
}

func embeddedCertificate(sig *etree.Element) *x509.Certificate {
	el := sig.FindElement(".//ds:X509Certificate")
	if el == nil {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(el.Text()))
	if err != nil {
		return nil
	}
	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil
	}
	return cert
}

func buildSignedInfo(rootID, docDigestB64, propsDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="#` + rootID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`<ds:Reference Type="` + TypeSignedProps + `" URI="#` + SignedPropsID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + propsDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildSignedProperties(signingTime, certDigestB64, issuerName, serial string) string {
	var sb strings.Builder
	sb.WriteString(`<xades:SignedProperties xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `" Id="` + SignedPropsID + `">`)
	sb.WriteString(`<xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + signingTime + `</xades:SigningTime>`)
	sb.WriteString(`<xades:SigningCertificate><xades:Cert><xades:CertDigest><ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + certDigestB64 + `</ds:DigestValue></xades:CertDigest>`)
	sb.WriteString(`<xades:IssuerSerial><ds:X509IssuerName>` + escapeXML(issuerName) + `</ds:X509IssuerName><ds:X509SerialNumber>` + serial + `</ds:X509SerialNumber></xades:IssuerSerial></xades:Cert></xades:SigningCertificate>`)
	sb.WriteString(`</xades:SignedSignatureProperties></xades:SignedProperties>`)
	return sb.String()
}

func buildFullSignature(signedInfoXML, signatureValueB64, certB64, signedPropsXML string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `" Id="` + SignatureID + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`<ds:Object><xades:QualifyingProperties Target="#` + SignatureID + `">`)
	sb.WriteString(signedPropsXML)
	sb.WriteString(`</xades:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
