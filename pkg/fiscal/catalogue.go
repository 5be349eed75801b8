package fiscal

import (
	"strings"
	"time"
)

// =============================================================================
// Catálogo de códigos de respuesta del servicio de atestación.
// El prefijo del código determina la familia del error.
// =============================================================================

// ErrorKind familia de un código de error del servicio externo.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindMaintenance    ErrorKind = "maintenance"
	KindCommunication  ErrorKind = "communication"
	KindSignature      ErrorKind = "signature"
	KindUnknown        ErrorKind = "unknown"
)

// CatalogueEntry describe un código conocido.
type CatalogueEntry struct {
	Code      string
	Message   string
	Kind      ErrorKind
	Retryable bool
	BaseDelay time.Duration
}

var catalogue = map[string]CatalogueEntry{
	"VAL001":  {Code: "VAL001", Message: "Estructura XML no válida", Kind: KindValidation},
	"VAL002":  {Code: "VAL002", Message: "NIF del emisor no válido", Kind: KindValidation},
	"VAL003":  {Code: "VAL003", Message: "NIF del destinatario no válido", Kind: KindValidation},
	"VAL004":  {Code: "VAL004", Message: "Importes descuadrados", Kind: KindValidation},
	"VAL005":  {Code: "VAL005", Message: "Fecha de expedición fuera de rango", Kind: KindValidation},
	"TBAI001": {Code: "TBAI001", Message: "Encadenamiento incorrecto con el registro anterior", Kind: KindValidation},
	"TBAI002": {Code: "TBAI002", Message: "Registro duplicado", Kind: KindValidation},
	"TBAI003": {Code: "TBAI003", Message: "Registro a anular inexistente", Kind: KindValidation},
	"AUTH001": {Code: "AUTH001", Message: "Certificado no reconocido", Kind: KindAuthentication},
	"AUTH002": {Code: "AUTH002", Message: "Certificado caducado o revocado", Kind: KindAuthentication},
	"SIGN001": {Code: "SIGN001", Message: "Firma no válida", Kind: KindSignature},
	"SIGN002": {Code: "SIGN002", Message: "Certificado de firma no válido", Kind: KindSignature},
	"RATE001": {Code: "RATE001", Message: "Demasiadas peticiones", Kind: KindRateLimit, Retryable: true, BaseDelay: 60 * time.Second},
	"MANT001": {Code: "MANT001", Message: "Servicio en mantenimiento", Kind: KindMaintenance, Retryable: true, BaseDelay: 300 * time.Second},
	"COM001":  {Code: "COM001", Message: "Error de comunicación", Kind: KindCommunication, Retryable: true, BaseDelay: 5 * time.Second},
	"COM002":  {Code: "COM002", Message: "Tiempo de espera agotado", Kind: KindCommunication, Retryable: true, BaseDelay: 5 * time.Second},
	"COM003":  {Code: "COM003", Message: "Servicio no disponible temporalmente", Kind: KindCommunication, Retryable: true, BaseDelay: 5 * time.Second},
}

// LookupCode devuelve la entrada del catálogo para code. Los códigos desconocidos se
// clasifican por prefijo.
func LookupCode(code string) CatalogueEntry {
	code = strings.ToUpper(strings.TrimSpace(code))
	if e, ok := catalogue[code]; ok {
		return e
	}
	e := CatalogueEntry{Code: code, Message: "Error no catalogado", Kind: KindUnknown}
	switch {
	case strings.HasPrefix(code, "VAL"), strings.HasPrefix(code, "TBAI"):
		e.Kind = KindValidation
	case strings.HasPrefix(code, "AUTH"):
		e.Kind = KindAuthentication
	case strings.HasPrefix(code, "SIGN"):
		e.Kind = KindSignature
	case strings.HasPrefix(code, "RATE"):
		e.Kind, e.Retryable, e.BaseDelay = KindRateLimit, true, 60*time.Second
	case strings.HasPrefix(code, "MANT"):
		e.Kind, e.Retryable, e.BaseDelay = KindMaintenance, true, 300*time.Second
	case strings.HasPrefix(code, "COM"):
		e.Kind, e.Retryable, e.BaseDelay = KindCommunication, true, 5*time.Second
	}
	return e
}
