package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturae-api/internal/application/auth"
	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae/signer"
	"github.com/jhoicas/facturae-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Invoices     *billing.InvoiceUseCase
	Orchestrator *billing.AttestationOrchestrator
	Submissions  *billing.SubmissionService
	Parties      *billing.PartyUseCase
	Verifier     *billing.ChainVerifier
	Certificates *signer.CertificateStore
	Auth         *auth.AuthUseCase
	JWTSecret    string
	Log          zerolog.Logger
}

// Router registra las rutas de la API. Salvo el login, todas exigen Bearer Token; las
// escrituras solo admin y facturador, las lecturas también auditor.
func Router(app *fiber.App, deps RouterDeps) {
	var authHandler *AuthHandler
	if deps.Auth != nil {
		authHandler = NewAuthHandler(deps.Auth, deps.Log)
		// Público: se registra antes del grupo protegido.
		app.Post("/api/auth/login", authHandler.Login)
	}

	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	write := RequireRole(jwt.RoleAdmin, jwt.RoleBilling)
	read := RequireRole(jwt.RoleAdmin, jwt.RoleBilling, jwt.RoleAuditor)

	parties := NewPartyHandler(deps.Parties, deps.Log)
	api.Get("/issuer", read, parties.Issuer)
	clients := api.Group("/clients")
	clients.Post("/", write, parties.CreateClient)
	clients.Get("/", read, parties.ListClients)

	invoiceHandler := NewInvoiceHandler(deps.Invoices, deps.Orchestrator, deps.Submissions, deps.Log)
	invoices := api.Group("/invoices")
	invoices.Post("/", write, invoiceHandler.Create)
	invoices.Get("/", read, invoiceHandler.List)
	invoices.Get("/:id", read, invoiceHandler.GetByID)
	invoices.Put("/:id", write, invoiceHandler.Update)
	invoices.Delete("/:id", write, invoiceHandler.Discard)
	invoices.Post("/:id/issue", write, invoiceHandler.Issue)
	invoices.Post("/:id/cancel", write, invoiceHandler.Cancel)
	invoices.Post("/:id/pay", write, invoiceHandler.Pay)
	invoices.Post("/:id/overdue", write, invoiceHandler.Overdue)
	invoices.Get("/:id/qr", read, invoiceHandler.QR)
	invoices.Get("/:id/xml", read, invoiceHandler.XML)
	invoices.Get("/:id/pdf", read, invoiceHandler.PDF)
	invoices.Get("/:id/verify", read, invoiceHandler.Verify)
	invoices.Get("/:id/submissions", read, invoiceHandler.Submissions)

	chain := NewChainHandler(deps.Verifier, deps.Log)
	api.Get("/chain/verify", read, chain.Verify)

	if deps.Certificates != nil {
		certs := NewCertificateHandler(deps.Certificates, deps.Log)
		api.Get("/certificate", RequireRole(jwt.RoleAdmin, jwt.RoleAuditor), certs.Get)
	}

	if authHandler != nil {
		users := api.Group("/users", RequireRole(jwt.RoleAdmin))
		users.Post("/", authHandler.Register)
		users.Get("/", authHandler.ListUsers)
	}
}
