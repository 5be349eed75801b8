package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/jhoicas/facturae-api/internal/infrastructure/facturae"
	pkgfiscal "github.com/jhoicas/facturae-api/pkg/fiscal"
	"github.com/rs/zerolog"
)

// OrchestratorConfig política de la emisión.
type OrchestratorConfig struct {
	// VerificationBaseURL base del enlace de verificación que lleva el QR.
	VerificationBaseURL string
	// RequireSignature impide emitir documentos sin firma (producción).
	RequireSignature bool
}

// AttestationOrchestrator lleva una factura de borrador a emitida y de emitida a anulada:
//
//	validación → huella encadenada → XML canónico → firma XAdES → QR → persistencia → envío
//
// Todo lo que lee o escribe la cabecera de la cadena ocurre dentro de TxRunner.RunInChain,
// así que dos emisiones del mismo emisor nunca ven la misma huella anterior. El envío al
// servicio externo se encola después del commit y nunca revierte la emisión local.
type AttestationOrchestrator struct {
	tx        TxRunner
	repos     repository.Repos
	validator fiscal.Validator
	hasher    fiscal.Hasher
	builder   *facturae.XMLBuilderService
	signer    pkgfiscal.Signer
	qr        QREncoder
	pdf       InvoicePDFGenerator
	queue     SubmissionQueue
	notifier  Notifier
	cfg       OrchestratorConfig
	log       zerolog.Logger
	now       func() time.Time
}

// OrchestratorOption configura dependencias opcionales.
type OrchestratorOption func(*AttestationOrchestrator)

// WithQueue cola a la que se entregan los envíos tras el commit.
func WithQueue(q SubmissionQueue) OrchestratorOption {
	return func(o *AttestationOrchestrator) { o.queue = q }
}

// WithNotifier notificador de emisiones y anulaciones.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *AttestationOrchestrator) { o.notifier = n }
}

// WithPDFGenerator habilita la representación impresa (PDF).
func WithPDFGenerator(g InvoicePDFGenerator) OrchestratorOption {
	return func(o *AttestationOrchestrator) { o.pdf = g }
}

// WithClock reloj para tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *AttestationOrchestrator) { o.now = now }
}

// WithHasher sustituye el cálculo de huellas.
func WithHasher(h fiscal.Hasher) OrchestratorOption {
	return func(o *AttestationOrchestrator) { o.hasher = h }
}

// NewAttestationOrchestrator construye el orquestador con todas sus dependencias.
// Sin cola los envíos quedan pendientes hasta que el cron de reintentos los recoja.
func NewAttestationOrchestrator(
	tx TxRunner,
	repos repository.Repos,
	validator fiscal.Validator,
	builder *facturae.XMLBuilderService,
	signer pkgfiscal.Signer,
	qr QREncoder,
	cfg OrchestratorConfig,
	log zerolog.Logger,
	opts ...OrchestratorOption,
) *AttestationOrchestrator {
	o := &AttestationOrchestrator{
		tx:        tx,
		repos:     repos,
		validator: validator,
		hasher:    fiscal.SHA256Hasher{},
		builder:   builder,
		signer:    signer,
		qr:        qr,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// issueContext dependencias de la factura cargadas dentro de la transacción.
type issueContext struct {
	invoice  *entity.Invoice
	details  []*entity.InvoiceDetail
	client   *entity.Client
	issuer   *entity.Issuer
	original *entity.Invoice
}

// Issue emite un borrador. Si la validación falla la factura sigue en borrador y el error
// lleva la lista completa de reglas incumplidas (domain.Violations).
func (o *AttestationOrchestrator) Issue(ctx context.Context, issuerID, invoiceID string) (*dto.AttestationResponse, error) {
	var (
		issued  *entity.Invoice
		details []*entity.InvoiceDetail
		sub     *entity.Submission
	)
	err := o.tx.RunInChain(ctx, issuerID, func(repos repository.Repos, head *entity.ChainHead) error {
		ic, err := o.loadForIssue(ctx, repos, issuerID, invoiceID)
		if err != nil {
			return err
		}
		if err := fiscal.CheckTransition(ic.invoice.Status, entity.InvoiceStatusIssued); err != nil {
			return err
		}
		if err := o.validator.Validate(fiscal.ValidationInput{
			Invoice:  ic.invoice,
			Details:  ic.details,
			Client:   ic.client,
			Original: ic.original,
		}); err != nil {
			return err
		}

		now := o.now().UTC()
		inv := *ic.invoice
		in := fiscal.NewInput(&inv, ic.client.TaxID)
		inv.PreviousFingerprint = head.LastFingerprint
		inv.Fingerprint = o.hasher.Fingerprint(in, head.LastFingerprint)
		inv.AttestationID = o.hasher.AttestationID(in, inv.Fingerprint)
		inv.ChainSeq = head.LastSeq + 1

		doc, err := o.builder.Build(&facturae.InvoiceBuildContext{
			Invoice:  &inv,
			Details:  ic.details,
			Issuer:   ic.issuer,
			Client:   ic.client,
			Original: ic.original,
		})
		if err != nil {
			return err
		}
		signed, err := o.sign(doc)
		if err != nil {
			return err
		}

		inv.QRPayload = facturae.VerificationURL(o.cfg.VerificationBaseURL, inv.AttestationID, inv.Fingerprint)
		if !o.qr.ValidatePayload(inv.QRPayload) {
			return domain.NewValidationError("QR006",
				fmt.Sprintf("enlace de verificación no válido: %q", inv.QRPayload))
		}
		if _, err := o.qr.Encode(inv.QRPayload); err != nil {
			return err
		}

		inv.Status = entity.InvoiceStatusIssued
		inv.CanonicalXML = string(signed.Document)
		inv.SignatureBlock = signed.SignatureBlock
		inv.Signed = signed.Signed
		inv.SignedAt = signedAt(signed)
		inv.SubmissionStatus = entity.SubmissionStatusPending
		inv.UpdatedAt = now
		if err := repos.Invoices.MarkIssued(ctx, &inv); err != nil {
			return err
		}

		rec := &entity.AttestationRecord{
			ID:                  uuid.New().String(),
			IssuerID:            issuerID,
			InvoiceID:           inv.ID,
			Seq:                 inv.ChainSeq,
			Kind:                entity.RecordKindIssue,
			PreviousFingerprint: inv.PreviousFingerprint,
			Fingerprint:         inv.Fingerprint,
			AttestationID:       inv.AttestationID,
			SignedXML:           inv.CanonicalXML,
			Signed:              inv.Signed,
			SignedAt:            inv.SignedAt,
			CreatedAt:           now,
		}
		if err := o.appendRecord(ctx, repos, head, rec); err != nil {
			return err
		}

		sub = newSubmission(rec, entity.SubmissionOpSubmit, now)
		if err := repos.Submissions.Create(ctx, sub); err != nil {
			return err
		}
		issued, details = &inv, ic.details
		return nil
	})
	if err != nil {
		o.logRejected(err, issuerID, invoiceID, "emisión rechazada")
		return nil, err
	}

	o.log.Info().
		Str("invoice_id", issued.ID).
		Str("issuer_id", issuerID).
		Str("attestation_id", issued.AttestationID).
		Int64("seq", issued.ChainSeq).
		Bool("signed", issued.Signed).
		Msg("factura emitida")
	if !issued.Signed {
		o.log.Warn().Str("invoice_id", issued.ID).Msg("factura emitida SIN FIRMA (modo de pruebas)")
	}

	o.dispatch(ctx, sub, Notification{
		Event:         EventInvoiceIssued,
		IssuerID:      issuerID,
		InvoiceID:     issued.ID,
		AttestationID: issued.AttestationID,
	})
	return &dto.AttestationResponse{
		Invoice:    *toInvoiceResponse(issued, details),
		Submission: toSubmissionResponse(sub),
		Message:    "factura emitida; envío al servicio de atestación pendiente",
	}, nil
}

// Cancel anula una factura emitida con un registro de anulación encadenado. La anulación
// enlaza con el último eslabón de la cadena del emisor (no con el alta anulada) y guarda la
// huella del alta en ReferenceFingerprint.
func (o *AttestationOrchestrator) Cancel(ctx context.Context, issuerID, invoiceID string) (*dto.AttestationResponse, error) {
	var (
		cancelled *entity.Invoice
		sub       *entity.Submission
	)
	err := o.tx.RunInChain(ctx, issuerID, func(repos repository.Repos, head *entity.ChainHead) error {
		inv, err := loadInvoice(ctx, repos, issuerID, invoiceID)
		if err != nil {
			return err
		}
		if err := fiscal.CheckTransition(inv.Status, entity.InvoiceStatusCancelled); err != nil {
			return err
		}
		issuer, err := loadIssuer(ctx, repos, issuerID)
		if err != nil {
			return err
		}

		now := o.now().UTC()
		// La huella de la anulación se calcula con precisión de segundos; el registro guarda
		// ese mismo instante para poder recalcularla.
		cancelledAt := now.Truncate(time.Second)
		in := fiscal.CancellationInput{
			Series:               inv.Series,
			Number:               inv.Number,
			CancelledAt:          cancelledAt,
			CancelledFingerprint: inv.Fingerprint,
		}
		fp := o.hasher.CancellationFingerprint(in, head.LastFingerprint)
		attID := o.hasher.CancellationID(in, fp)

		doc, err := o.builder.BuildCancellation(&facturae.CancellationBuildContext{
			Invoice:             inv,
			Issuer:              issuer,
			Input:               in,
			PreviousFingerprint: head.LastFingerprint,
			Fingerprint:         fp,
			AttestationID:       attID,
		})
		if err != nil {
			return err
		}
		signed, err := o.sign(doc)
		if err != nil {
			return err
		}

		if err := repos.Invoices.UpdateStatus(ctx, inv.ID, inv.Status, entity.InvoiceStatusCancelled, now); err != nil {
			return err
		}
		rec := &entity.AttestationRecord{
			ID:                   uuid.New().String(),
			IssuerID:             issuerID,
			InvoiceID:            inv.ID,
			Seq:                  head.LastSeq + 1,
			Kind:                 entity.RecordKindCancel,
			PreviousFingerprint:  head.LastFingerprint,
			Fingerprint:          fp,
			ReferenceFingerprint: inv.Fingerprint,
			AttestationID:        attID,
			SignedXML:            string(signed.Document),
			Signed:               signed.Signed,
			SignedAt:             signedAt(signed),
			CreatedAt:            cancelledAt,
		}
		if err := o.appendRecord(ctx, repos, head, rec); err != nil {
			return err
		}

		sub = newSubmission(rec, entity.SubmissionOpCancel, now)
		if err := repos.Submissions.Create(ctx, sub); err != nil {
			return err
		}
		if err := repos.Invoices.UpdateSubmissionStatus(ctx, inv.ID, entity.SubmissionStatusPending); err != nil {
			return err
		}
		inv.Status = entity.InvoiceStatusCancelled
		inv.SubmissionStatus = entity.SubmissionStatusPending
		inv.UpdatedAt = now
		cancelled = inv
		return nil
	})
	if err != nil {
		o.logRejected(err, issuerID, invoiceID, "anulación rechazada")
		return nil, err
	}

	o.log.Info().
		Str("invoice_id", cancelled.ID).
		Str("issuer_id", issuerID).
		Str("attestation_id", sub.AttestationID).
		Msg("factura anulada")
	o.dispatch(ctx, sub, Notification{
		Event:         EventInvoiceCancelled,
		IssuerID:      issuerID,
		InvoiceID:     cancelled.ID,
		AttestationID: sub.AttestationID,
	})
	return &dto.AttestationResponse{
		Invoice:    *toInvoiceResponse(cancelled, nil),
		Submission: toSubmissionResponse(sub),
		Message:    "factura anulada; envío de la anulación pendiente",
	}, nil
}

// PreviewXML devuelve el documento de la factura. Para un borrador se genera sin bloque de
// encadenamiento ni firma; para una factura emitida es el documento registrado.
func (o *AttestationOrchestrator) PreviewXML(ctx context.Context, issuerID, invoiceID string) ([]byte, error) {
	ic, err := o.loadForIssue(ctx, o.repos, issuerID, invoiceID)
	if err != nil {
		return nil, err
	}
	if ic.invoice.IsAttested() {
		return []byte(ic.invoice.CanonicalXML), nil
	}
	return o.builder.Build(&facturae.InvoiceBuildContext{
		Invoice:  ic.invoice,
		Details:  ic.details,
		Issuer:   ic.issuer,
		Client:   ic.client,
		Original: ic.original,
	})
}

// VerifyInvoice recalcula la huella registrada y comprueba la firma del documento guardado.
func (o *AttestationOrchestrator) VerifyInvoice(ctx context.Context, issuerID, invoiceID string) (*dto.VerificationResponse, error) {
	inv, err := loadInvoice(ctx, o.repos, issuerID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsAttested() {
		return nil, domain.NewValidationError("VAL207", "la factura no está emitida")
	}
	client, err := o.repos.Clients.GetByID(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}
	taxID := ""
	if client != nil {
		taxID = client.TaxID
	}
	in := fiscal.NewInput(inv, taxID)
	out := &dto.VerificationResponse{
		InvoiceID:        inv.ID,
		AttestationID:    inv.AttestationID,
		FingerprintValid: o.hasher.Fingerprint(in, inv.PreviousFingerprint) == inv.Fingerprint,
		Signed:           inv.Signed,
	}
	if inv.Signed {
		ok, err := o.signer.Verify([]byte(inv.CanonicalXML))
		if err != nil {
			o.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("documento firmado ilegible")
		}
		out.SignatureValid = ok && err == nil
	}
	out.Valid = out.FingerprintValid && (!inv.Signed || out.SignatureValid)
	if !out.Valid {
		o.log.Error().
			Str("invoice_id", inv.ID).
			Bool("fingerprint_valid", out.FingerprintValid).
			Bool("signature_valid", out.SignatureValid).
			Msg("verificación de factura fallida")
	}
	return out, nil
}

// QRImage PNG del QR de verificación de una factura emitida.
func (o *AttestationOrchestrator) QRImage(ctx context.Context, issuerID, invoiceID string) ([]byte, error) {
	inv, err := loadInvoice(ctx, o.repos, issuerID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.QRPayload == "" {
		return nil, domain.NewValidationError("VAL207", "la factura no está emitida")
	}
	return o.qr.Encode(inv.QRPayload)
}

// PDF representación impresa de una factura emitida, anulada o no.
func (o *AttestationOrchestrator) PDF(ctx context.Context, issuerID, invoiceID string) ([]byte, error) {
	if o.pdf == nil {
		return nil, domain.NewConfigurationError("CONF030", "generador de PDF no configurado", nil)
	}
	ic, err := o.loadForIssue(ctx, o.repos, issuerID, invoiceID)
	if err != nil {
		return nil, err
	}
	if !ic.invoice.IsAttested() {
		return nil, domain.NewValidationError("VAL207", "la factura no está emitida")
	}
	return o.pdf.GenerateInvoicePDF(ctx, InvoicePrint{
		Invoice: ic.invoice,
		Issuer:  ic.issuer,
		Client:  ic.client,
		Details: ic.details,
	})
}

func (o *AttestationOrchestrator) loadForIssue(ctx context.Context, repos repository.Repos, issuerID, invoiceID string) (*issueContext, error) {
	inv, err := loadInvoice(ctx, repos, issuerID, invoiceID)
	if err != nil {
		return nil, err
	}
	issuer, err := loadIssuer(ctx, repos, issuerID)
	if err != nil {
		return nil, err
	}
	details, err := repos.Invoices.GetDetailsByInvoiceID(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	client, err := repos.Clients.GetByID(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}
	if client != nil && client.IssuerID != issuerID {
		client = nil
	}
	var original *entity.Invoice
	if inv.OriginalInvoiceID != nil && *inv.OriginalInvoiceID != "" {
		if original, err = repos.Invoices.GetByID(ctx, *inv.OriginalInvoiceID); err != nil {
			return nil, err
		}
	}
	return &issueContext{invoice: inv, details: details, client: client, issuer: issuer, original: original}, nil
}

// sign firma el documento. Los fallos de la maquinaria se devuelven siempre como
// SignatureError para que la capa HTTP responda de forma opaca.
func (o *AttestationOrchestrator) sign(doc []byte) (*pkgfiscal.SignResult, error) {
	res, err := o.signer.Sign(doc)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.NewSignatureError("SIGN001", "no se pudo firmar el documento", err)
	}
	if !res.Signed && o.cfg.RequireSignature {
		return nil, domain.NewSignatureError("SIGN030", "la firma es obligatoria y no hay certificado", nil)
	}
	return res, nil
}

// appendRecord añade el eslabón y avanza la cabecera en la misma transacción.
func (o *AttestationOrchestrator) appendRecord(ctx context.Context, repos repository.Repos, head *entity.ChainHead, rec *entity.AttestationRecord) error {
	if err := repos.Records.Append(ctx, rec); err != nil {
		return err
	}
	return repos.Chains.Advance(ctx, &entity.ChainHead{
		IssuerID:        head.IssuerID,
		LastSeq:         rec.Seq,
		LastFingerprint: rec.Fingerprint,
		UpdatedAt:       rec.CreatedAt,
	})
}

// dispatch entrega el envío a la cola y avisa al notificador. Ningún fallo aquí afecta a la
// emisión ya confirmada: el cron de reintentos recoge los envíos que no llegaron a la cola.
func (o *AttestationOrchestrator) dispatch(ctx context.Context, sub *entity.Submission, n Notification) {
	if o.queue != nil {
		if err := o.queue.Enqueue(ctx, sub.ID); err != nil {
			o.log.Warn().Err(err).Str("submission_id", sub.ID).Msg("no se pudo encolar el envío; lo recogerá el cron")
		}
	}
	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, n); err != nil {
			o.log.Warn().Err(err).Str("event", n.Event).Msg("notificación no entregada")
		}
	}
}

func (o *AttestationOrchestrator) logRejected(err error, issuerID, invoiceID, msg string) {
	ev := o.log.Warn()
	switch {
	case errors.Is(err, domain.ErrChainIntegrity):
		ev = o.log.Error()
	case errors.Is(err, domain.ErrSignature), errors.Is(err, domain.ErrConfiguration):
		ev = o.log.Error()
	}
	ev.Err(err).
		Str("code", domain.CodeOf(err)).
		Str("issuer_id", issuerID).
		Str("invoice_id", invoiceID).
		Strs("violations", domain.Violations(err)).
		Msg(msg)
}

func loadIssuer(ctx context.Context, repos repository.Repos, issuerID string) (*entity.Issuer, error) {
	issuer, err := repos.Issuers.GetByID(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: emisor %s", domain.ErrNotFound, issuerID)
	}
	return issuer, nil
}

func newSubmission(rec *entity.AttestationRecord, op string, now time.Time) *entity.Submission {
	return &entity.Submission{
		ID:            uuid.New().String(),
		IssuerID:      rec.IssuerID,
		InvoiceID:     rec.InvoiceID,
		RecordID:      rec.ID,
		Operation:     op,
		AttestationID: rec.AttestationID,
		Status:        entity.SubmissionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func signedAt(res *pkgfiscal.SignResult) *time.Time {
	if !res.Signed {
		return nil
	}
	t := res.SignedAt.UTC()
	return &t
}
