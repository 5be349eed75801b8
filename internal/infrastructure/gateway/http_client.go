package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain"
	pkgfiscal "github.com/jhoicas/facturae-api/pkg/fiscal"
)

const (
	pathSubmissions   = "/v1/registros"
	pathCancellations = "/v1/anulaciones"

	maxResponseBytes = 1 << 20
)

// Options ajustes del cliente HTTP.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Breaker       BreakerConfig
}

// HTTPGateway implementa billing.Gateway contra la API JSON del servicio de atestación.
// AttestationID viaja como Idempotency-Key: reenviar el mismo registro no crea un alta nueva.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	log        zerolog.Logger
}

var _ billing.Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway construye el cliente. RatePerSecond <= 0 desactiva el limitador.
func NewHTTPGateway(opts Options, log zerolog.Logger) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, domain.NewConfigurationError("CONF020", "URL del servicio de atestación no válida", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &HTTPGateway{
		baseURL:    u.String(),
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    NewCircuitBreaker(opts.Breaker),
		log:        log.With().Str("component", "gateway").Logger(),
	}, nil
}

// Breaker expone el circuito para que el cron de reintentos no insista con él abierto.
func (g *HTTPGateway) Breaker() *CircuitBreaker { return g.breaker }

type documentRequest struct {
	AttestationID string `json:"attestation_id"`
	IssuerTaxID   string `json:"issuer_tax_id"`
	Document      string `json:"document"` // XML firmado en base64
}

type resultResponse struct {
	Accepted    bool   `json:"accepted"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// Submit envía un registro de alta.
func (g *HTTPGateway) Submit(ctx context.Context, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	return g.post(ctx, pathSubmissions, req)
}

// Cancel envía un registro de anulación.
func (g *HTTPGateway) Cancel(ctx context.Context, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	return g.post(ctx, pathCancellations, req)
}

// CheckStatus consulta el estado de un registro. 404 devuelve Status "unknown".
func (g *HTTPGateway) CheckStatus(ctx context.Context, attestationID string) (*billing.GatewayResult, error) {
	endpoint := g.baseURL + pathSubmissions + "/" + url.PathEscape(attestationID)
	var out *billing.GatewayResult
	err := g.do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("gateway: crear request: %w", err)
		}
		resp, body, err := g.send(ctx, httpReq)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			out = &billing.GatewayResult{Status: "unknown"}
			return nil
		}
		out, err = decodeResult(resp, body)
		return err
	})
	return out, err
}

func (g *HTTPGateway) post(ctx context.Context, path string, req billing.GatewayRequest) (*billing.GatewayResult, error) {
	payload, err := json.Marshal(documentRequest{
		AttestationID: req.AttestationID,
		IssuerTaxID:   req.IssuerTaxID,
		Document:      base64.StdEncoding.EncodeToString(req.Document),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: serializar petición: %w", err)
	}

	var out *billing.GatewayResult
	err = g.do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("gateway: crear request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Idempotency-Key", req.AttestationID)
		resp, body, err := g.send(ctx, httpReq)
		if err != nil {
			return err
		}
		out, err = decodeResult(resp, body)
		return err
	})
	if err == nil {
		g.log.Debug().Str("attestation_id", req.AttestationID).Str("path", path).
			Bool("accepted", out.Accepted).Str("code", out.Code).Msg("respuesta del servicio de atestación")
	}
	return out, err
}

// do aplica limitador y circuito alrededor de la llamada.
func (g *HTTPGateway) do(ctx context.Context, call func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.NewCommunicationError("COM002", "espera del limitador cancelada", err)
	}
	err := g.breaker.Execute(call, domain.IsRetryable)
	if errors.Is(err, ErrCircuitOpen) {
		return domain.NewCommunicationError("COM003", "servicio de atestación no disponible temporalmente", err)
	}
	return err
}

func (g *HTTPGateway) send(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, domain.NewCommunicationError("COM002", "tiempo de espera agotado", ctx.Err())
		}
		return nil, nil, domain.NewCommunicationError("COM001", "llamada HTTP fallida", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, domain.NewCommunicationError("COM001", "leer respuesta", err)
	}
	return resp, body, nil
}

// decodeResult traduce la respuesta HTTP. 2xx trae el veredicto; 429, 503 y 5xx son
// transitorios; el resto se clasifica por el código del cuerpo.
func decodeResult(resp *http.Response, body []byte) (*billing.GatewayResult, error) {
	var r resultResponse
	parsed := json.Unmarshal(body, &r) == nil

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewRateLimitError(codeOr(r.Code, "RATE001"), messageOr(r.Message, "demasiadas peticiones"))
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, domain.NewMaintenanceError(codeOr(r.Code, "MANT001"), messageOr(r.Message, "servicio en mantenimiento"))
	case resp.StatusCode >= 500:
		return nil, domain.NewCommunicationError("COM001",
			fmt.Sprintf("respuesta %d del servicio de atestación", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewAuthenticationError(codeOr(r.Code, "AUTH001"), messageOr(r.Message, "certificado no reconocido"))
	}

	if !parsed {
		return nil, domain.NewCommunicationError("COM001",
			fmt.Sprintf("respuesta %d no interpretable", resp.StatusCode), nil)
	}
	if r.Code != "" && !r.Accepted {
		if err := errorForCode(r.Code, r.Message); err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= 400 && r.Code == "" {
		return nil, domain.NewValidationError("VAL001", messageOr(r.Message, fmt.Sprintf("petición rechazada (%d)", resp.StatusCode)))
	}
	return &billing.GatewayResult{
		Accepted:    r.Accepted,
		ReferenceID: r.ReferenceID,
		Status:      r.Status,
		Code:        r.Code,
		Message:     r.Message,
	}, nil
}

// errorForCode devuelve error solo para códigos transitorios o de autenticación; los de
// validación son un rechazo definitivo que se refleja en el resultado.
func errorForCode(code, message string) error {
	e := pkgfiscal.LookupCode(code)
	msg := messageOr(message, e.Message)
	switch e.Kind {
	case pkgfiscal.KindRateLimit:
		return domain.NewRateLimitError(e.Code, msg)
	case pkgfiscal.KindMaintenance:
		return domain.NewMaintenanceError(e.Code, msg)
	case pkgfiscal.KindCommunication:
		return domain.NewCommunicationError(e.Code, msg, nil)
	case pkgfiscal.KindAuthentication:
		return domain.NewAuthenticationError(e.Code, msg)
	}
	return nil
}

func codeOr(code, def string) string {
	if code != "" {
		return code
	}
	return def
}

func messageOr(msg, def string) string {
	if msg != "" {
		return msg
	}
	return def
}
