// Package bootstrap construye el grafo de dependencias a partir de la configuración.
// Lo comparten el servidor HTTP y la CLI de operación.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/auth"
	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
	"github.com/jhoicas/facturae-api/internal/infrastructure/gateway"
	"github.com/jhoicas/facturae-api/internal/infrastructure/pdf"
	"github.com/jhoicas/facturae-api/internal/infrastructure/postgres"
	"github.com/jhoicas/facturae-api/internal/infrastructure/queue"
	"github.com/jhoicas/facturae-api/pkg/config"
)

// App servicios ya cableados. Redis, DLQ y Dispatcher son nil si no hay REDIS_URL;
// Breaker es nil con el gateway simulado.
type App struct {
	Pool         *pgxpool.Pool
	Repos        repository.Repos
	Certificates *signer.CertificateStore
	Orchestrator *billing.AttestationOrchestrator
	Invoices     *billing.InvoiceUseCase
	Parties      *billing.PartyUseCase
	Verifier     *billing.ChainVerifier
	Submissions  *billing.SubmissionService
	Auth         *auth.AuthUseCase
	Breaker      *gateway.CircuitBreaker
	Redis        *redis.Client
	Dispatcher   *queue.Dispatcher
	DLQ          *queue.DeadLetterQueue
}

// New abre PostgreSQL, aplica migraciones y construye los casos de uso.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	app, err := build(ctx, cfg, pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) (*App, error) {
	certs, err := signer.NewStoreFromConfig(cfg.Signing, signer.WithLogger(log.With().Str("component", "certificados").Logger()))
	if err != nil {
		return nil, err
	}
	if !certs.Unsigned() {
		if _, err := certs.Validate(); err != nil {
			return nil, err
		}
	}

	tx := postgres.NewTxRunner(pool)
	repos := postgres.NewRepos(pool)
	app := &App{Pool: pool, Repos: repos, Certificates: certs}

	var notifier billing.Notifier
	var dlq billing.DeadLetterSink
	opts := []billing.OrchestratorOption{billing.WithPDFGenerator(pdf.NewMarotoPDFGenerator())}
	if cfg.Redis.URL != "" {
		rdb, err := queue.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		app.Redis = rdb
		app.Dispatcher = queue.NewDispatcher(rdb)
		app.DLQ = queue.NewDeadLetterQueue(rdb, log.With().Str("component", "dlq").Logger())
		notifier, dlq = app.Dispatcher, app.DLQ
		opts = append(opts, billing.WithQueue(app.Dispatcher), billing.WithNotifier(app.Dispatcher))
	} else {
		log.Warn().Msg("REDIS_URL vacío: los envíos se procesan solo desde el cron de reintentos")
	}

	var gw billing.Gateway
	if cfg.Gateway.URL != "" {
		httpGw, err := gateway.NewHTTPGateway(gateway.Options{
			BaseURL:       cfg.Gateway.URL,
			APIKey:        cfg.Gateway.APIKey,
			Timeout:       cfg.Gateway.Timeout,
			RatePerSecond: cfg.Gateway.RatePerSecond,
			Breaker:       gateway.DefaultBreakerConfig(),
		}, log.With().Str("component", "gateway").Logger())
		if err != nil {
			return nil, err
		}
		app.Breaker = httpGw.Breaker()
		gw = httpGw
	} else {
		log.Warn().Msg("GATEWAY_URL vacío: se usa el servicio de atestación simulado")
		gw = gateway.NewSimulatedGateway(log.With().Str("component", "gateway").Logger())
	}

	validator := fiscal.NewValidator(fiscal.ValidatorConfig{
		SimplifiedCeiling: cfg.Attestation.SimplifiedCeiling,
		Tolerance:         cfg.Attestation.Tolerance,
	})
	builder := facturae.NewXMLBuilderService(facturae.SoftwareInfo{
		Name:    cfg.Attestation.SoftwareName,
		Version: cfg.Attestation.SoftwareVersion,
		License: cfg.Attestation.SoftwareLicense,
	}, cfg.Attestation.SchemaVersion)
	storeSigner := signer.NewStoreSigner(certs, signer.NewDigitalSignatureService(time.Now), log)

	app.Orchestrator = billing.NewAttestationOrchestrator(
		tx, repos, validator, builder, storeSigner, facturae.NewQRCodeEncoder(),
		billing.OrchestratorConfig{
			VerificationBaseURL: cfg.Attestation.VerificationBaseURL,
			RequireSignature:    cfg.App.IsProduction(),
		},
		log.With().Str("component", "emision").Logger(),
		opts...,
	)
	app.Invoices = billing.NewInvoiceUseCase(tx, repos, log)
	app.Parties = billing.NewPartyUseCase(repos.Issuers, repos.Clients)
	app.Auth = auth.NewAuthUseCase(repos.Users, repos.Issuers, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	app.Verifier = billing.NewChainVerifier(repos, fiscal.SHA256Hasher{}, log.With().Str("component", "cadena").Logger())
	app.Submissions = billing.NewSubmissionService(tx, repos, gw, notifier, dlq, billing.SubmissionConfig{
		MaxAttempts: cfg.Gateway.MaxAttempts,
	}, log.With().Str("component", "envios").Logger())
	return app, nil
}

// GatewayPaused indica si el circuito del servicio externo está abierto.
func (a *App) GatewayPaused() bool {
	return a.Breaker != nil && a.Breaker.State() == gateway.BreakerOpen
}

// Close libera conexiones.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.Pool.Close()
}
