package dto

// Límites de paginación de los listados.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest paginación para listados (?limit=&offset=).
type PageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// DefaultPage normaliza la página: límite por defecto si es cero, tope MaxPageLimit y
// offset nunca negativo.
func (p *PageRequest) DefaultPage() {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// ErrorResponse cuerpo de error HTTP. Violations lista todas las reglas incumplidas;
// InternalCode es el código tipado del error (VAL001, SIGN003, CHAIN002...).
type ErrorResponse struct {
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	Violations   []string `json:"violations,omitempty"`
	InternalCode string   `json:"internal_code,omitempty"`
}
