package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	_ "github.com/jhoicas/facturae-api/docs"
	"github.com/jhoicas/facturae-api/internal/bootstrap"
	"github.com/jhoicas/facturae-api/internal/infrastructure/queue"
	httpRouter "github.com/jhoicas/facturae-api/internal/interfaces/http"
	"github.com/jhoicas/facturae-api/pkg/config"
	"github.com/jhoicas/facturae-api/pkg/logger"
)

// @title        Facturae API
// @version      1.0
// @description  Emisión de facturas con huella encadenada, firma XAdES y QR de verificación.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	deps, err := bootstrap.New(ctx, cfg, log.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("inicialización")
	}
	defer deps.Close()

	if deps.Certificates.Unsigned() {
		log.Warn().Msg("modo sin firma: los documentos emitidos no llevan firma XAdES")
	}

	var workers *queue.WorkerPool
	if deps.Redis != nil {
		workers = queue.NewWorkerPool(deps.Redis, deps.Submissions, cfg.Gateway.Workers, log.Zerolog())
		workers.Start(ctx)
	}
	retry := queue.NewRetryCron(deps.Submissions, queue.DefaultRetryInterval, deps.GatewayPaused, log.WithComponent("reintentos"))
	retry.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturae API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "service": cfg.App.Name, "gateway_paused": deps.GatewayPaused()}
		if err := deps.Pool.Ping(c.UserContext()); err != nil {
			status["status"] = "degraded"
		}
		return c.JSON(status)
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Invoices:     deps.Invoices,
		Orchestrator: deps.Orchestrator,
		Submissions:  deps.Submissions,
		Parties:      deps.Parties,
		Verifier:     deps.Verifier,
		Certificates: deps.Certificates,
		Auth:         deps.Auth,
		JWTSecret:    cfg.JWT.Secret,
		Log:          log.WithComponent("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	stop()
	if workers != nil {
		workers.Wait()
	}

	log.Info().Msg("aplicación detenida")
}
