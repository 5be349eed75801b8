package domain

import (
	"errors"
	"fmt"
	"time"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
)

// Tipos de error de la atestación. Se comparan con errors.Is.
var (
	ErrValidation     = errors.New("validación fallida")
	ErrConfiguration  = errors.New("configuración inválida")
	ErrSignature      = errors.New("error de firma")
	ErrAuthentication = errors.New("error de autenticación con certificado")
	ErrCommunication  = errors.New("error de comunicación con el servicio de atestación")
	ErrRateLimit      = errors.New("límite de peticiones excedido")
	ErrMaintenance    = errors.New("servicio de atestación en mantenimiento")
	ErrChainIntegrity = errors.New("integridad de la cadena comprometida")
)

// Error es un error tipado con código interno. Kind es uno de los centinelas de arriba.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap permite errors.Is tanto con el tipo (Kind) como con la causa.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// NewValidationError contenido inválido o entrada malformada. Nunca se reintenta.
func NewValidationError(code, message string) *Error {
	return newError(ErrValidation, code, message, nil)
}

// NewConfigurationError certificado o entorno ausente. Fatal en arranque.
func NewConfigurationError(code, message string, err error) *Error {
	return newError(ErrConfiguration, code, message, err)
}

// NewSignatureError fallo de la maquinaria de firma o verificación.
func NewSignatureError(code, message string, err error) *Error {
	return newError(ErrSignature, code, message, err)
}

// NewAuthenticationError el servicio externo rechaza el certificado.
func NewAuthenticationError(code, message string) *Error {
	return newError(ErrAuthentication, code, message, nil)
}

// NewCommunicationError fallo transitorio de red con el servicio externo.
func NewCommunicationError(code, message string, err error) *Error {
	return newError(ErrCommunication, code, message, err)
}

// NewRateLimitError el servicio externo pide bajar el ritmo.
func NewRateLimitError(code, message string) *Error {
	return newError(ErrRateLimit, code, message, nil)
}

// NewMaintenanceError ventana de mantenimiento del servicio externo.
func NewMaintenanceError(code, message string) *Error {
	return newError(ErrMaintenance, code, message, nil)
}

// NewChainIntegrityError enlace roto o bifurcación en la cadena.
func NewChainIntegrityError(code, message string) *Error {
	return newError(ErrChainIntegrity, code, message, nil)
}

// CodeOf devuelve el código interno del error, o "INTERNAL" si no es tipado.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "INTERNAL"
}

// Violations extrae la lista de reglas incumplidas de un error de validación compuesto
// (errors.Join). El primer elemento centinela no se incluye.
func Violations(err error) []string {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return []string{e.Message}
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		if e == nil || isSentinel(e) {
			continue
		}
		out = append(out, e.Error())
	}
	return out
}

func isSentinel(err error) bool {
	if err == ErrValidation {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		return false
	}
	return errors.Unwrap(err) == ErrValidation
}

// IsRetryable indica si un fallo del servicio externo puede reintentarse.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrSignature), errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, ErrRateLimit), errors.Is(err, ErrMaintenance), errors.Is(err, ErrCommunication):
		return true
	default:
		return false
	}
}

// RetryDelay espera base sugerida según el tipo de error.
func RetryDelay(err error) time.Duration {
	switch {
	case errors.Is(err, ErrRateLimit):
		return 60 * time.Second
	case errors.Is(err, ErrMaintenance):
		return 300 * time.Second
	case errors.Is(err, ErrCommunication):
		return 5 * time.Second
	default:
		return time.Second
	}
}
