package fiscal

import "time"

// SignResult resultado de firmar un documento canónico.
type SignResult struct {
	Document       []byte    // documento con la firma envuelta (o el original si no se firmó)
	SignatureBlock string    // nodo ds:Signature serializado; vacío si no se firmó
	SignedAt       time.Time // instante de firma registrado en xades:SigningTime
	Signed         bool      // false en modo de pruebas sin certificado
}

// Signer firma y verifica documentos XML con firma envuelta (XAdES).
type Signer interface {
	// Sign firma el documento con el certificado vigente. Sin certificado configurado
	// devuelve el documento tal cual con Signed=false.
	Sign(doc []byte) (*SignResult, error)
	// Verify devuelve false si la firma no coincide y error si el documento es ilegible.
	Verify(doc []byte) (bool, error)
}
