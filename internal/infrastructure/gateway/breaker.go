package gateway

import (
	"errors"
	"sync"
	"time"
)

// Estados del circuito: cerrado (normal), abierto (fallo inmediato) y semiabierto
// (se deja pasar una prueba para comprobar la recuperación).
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen se devuelve sin llamar al servicio mientras el circuito está abierto.
var ErrCircuitOpen = errors.New("circuito abierto")

// BreakerConfig umbrales del circuito.
type BreakerConfig struct {
	FailureThreshold int           // fallos seguidos para abrir (5)
	SuccessThreshold int           // éxitos en semiabierto para cerrar (2)
	OpenTimeout      time.Duration // tiempo abierto antes de probar (60s)
}

// DefaultBreakerConfig valores por defecto.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 60 * time.Second}
}

// CircuitBreaker protege al servicio externo de una avalancha de reintentos. Solo los
// fallos transitorios cuentan; un rechazo de validación es una respuesta sana.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time
}

// NewCircuitBreaker crea el circuito cerrado.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
		now:              time.Now,
	}
}

// SetClock sustituye el reloj (tests).
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// State devuelve el estado actual; pasa de abierto a semiabierto al vencer OpenTimeout.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailureTime) >= cb.openTimeout {
		cb.state = BreakerHalfOpen
		cb.successCount = 0
	}
	return cb.state
}

// Execute ejecuta fn a través del circuito. trips decide qué errores cuentan como fallo.
func (cb *CircuitBreaker) Execute(fn func() error, trips func(error) bool) error {
	cb.mu.Lock()
	state := cb.stateLocked()
	cb.mu.Unlock()
	if state == BreakerOpen {
		return ErrCircuitOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil && trips(err) {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return err
}

// onFailure con el lock tomado.
func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case BreakerClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.successCount = 0
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.failureCount = 0
	}
}

// onSuccess con el lock tomado.
func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case BreakerClosed:
		cb.failureCount = 0
	case BreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}
