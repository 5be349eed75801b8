package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/jhoicas/facturae-api/internal/domain/tax"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InvoiceUseCase ciclo de vida de la factura fuera de la emisión: borradores, cobro,
// vencimiento y descarte.
type InvoiceUseCase struct {
	tx    TxRunner
	repos repository.Repos
	log   zerolog.Logger
	now   func() time.Time
}

// NewInvoiceUseCase construye el caso de uso. repos se usa para lecturas sin transacción.
func NewInvoiceUseCase(tx TxRunner, repos repository.Repos, log zerolog.Logger) *InvoiceUseCase {
	return &InvoiceUseCase{tx: tx, repos: repos, log: log, now: time.Now}
}

// CreateDraft crea un borrador. Cuotas y total salen de la calculadora.
func (uc *InvoiceUseCase) CreateDraft(ctx context.Context, issuerID string, in dto.InvoiceRequest) (*dto.InvoiceResponse, error) {
	now := uc.now().UTC()
	inv, details, err := uc.buildDraft(ctx, issuerID, in, now)
	if err != nil {
		return nil, err
	}
	inv.ID = uuid.New().String()
	inv.Status = entity.InvoiceStatusDraft
	inv.CreatedAt = now
	inv.UpdatedAt = now

	err = uc.tx.Run(ctx, func(repos repository.Repos) error {
		if err := repos.Invoices.Create(ctx, inv); err != nil {
			return err
		}
		for _, d := range details {
			d.InvoiceID = inv.ID
			if err := repos.Invoices.CreateDetail(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("invoice_id", inv.ID).Str("issuer_id", issuerID).
		Str("serie", inv.Series).Str("numero", inv.Number).Msg("borrador creado")
	return toInvoiceResponse(inv, details), nil
}

// UpdateDraft sustituye el contenido de un borrador. Una factura emitida es inmutable.
// La escritura va bajo el lock de la cadena: una emisión en curso de la misma factura
// termina antes y la edición se rechaza, nunca queda una emitida con contenido distinto
// al de su huella.
func (uc *InvoiceUseCase) UpdateDraft(ctx context.Context, issuerID, invoiceID string, in dto.InvoiceRequest) (*dto.InvoiceResponse, error) {
	if _, err := uc.load(ctx, uc.repos, issuerID, invoiceID); err != nil {
		return nil, err
	}
	now := uc.now().UTC()
	inv, details, err := uc.buildDraft(ctx, issuerID, in, now)
	if err != nil {
		return nil, err
	}

	err = uc.tx.RunInChain(ctx, issuerID, func(repos repository.Repos, _ *entity.ChainHead) error {
		current, err := uc.load(ctx, repos, issuerID, invoiceID)
		if err != nil {
			return err
		}
		if err := fiscal.EnsureMutable(current); err != nil {
			return err
		}
		inv.ID = current.ID
		inv.Status = current.Status
		inv.CreatedAt = current.CreatedAt
		inv.UpdatedAt = now
		if err := repos.Invoices.UpdateDraft(ctx, inv); err != nil {
			return err
		}
		return repos.Invoices.ReplaceDetails(ctx, inv.ID, details)
	})
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv, details), nil
}

// Get devuelve la factura con sus líneas.
func (uc *InvoiceUseCase) Get(ctx context.Context, issuerID, invoiceID string) (*dto.InvoiceResponse, error) {
	inv, err := uc.load(ctx, uc.repos, issuerID, invoiceID)
	if err != nil {
		return nil, err
	}
	details, err := uc.repos.Invoices.GetDetailsByInvoiceID(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv, details), nil
}

// ListByIssuer lista facturas del emisor.
func (uc *InvoiceUseCase) ListByIssuer(ctx context.Context, issuerID string, page dto.PageRequest) ([]*dto.InvoiceResponse, error) {
	page.DefaultPage()
	list, err := uc.repos.Invoices.ListByIssuer(ctx, issuerID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.InvoiceResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvoiceResponse(inv, nil))
	}
	return out, nil
}

// MarkPaid emitida|vencida -> pagada.
func (uc *InvoiceUseCase) MarkPaid(ctx context.Context, issuerID, invoiceID string) (*dto.InvoiceResponse, error) {
	return uc.transition(ctx, issuerID, invoiceID, entity.InvoiceStatusPaid)
}

// MarkOverdue emitida -> vencida.
func (uc *InvoiceUseCase) MarkOverdue(ctx context.Context, issuerID, invoiceID string) (*dto.InvoiceResponse, error) {
	return uc.transition(ctx, issuerID, invoiceID, entity.InvoiceStatusOverdue)
}

// DiscardDraft borrado lógico de un borrador. Las facturas emitidas se anulan, no se borran.
func (uc *InvoiceUseCase) DiscardDraft(ctx context.Context, issuerID, invoiceID string) error {
	return uc.tx.RunInChain(ctx, issuerID, func(repos repository.Repos, _ *entity.ChainHead) error {
		inv, err := uc.load(ctx, repos, issuerID, invoiceID)
		if err != nil {
			return err
		}
		if !inv.IsDraft() {
			return domain.NewValidationError("VAL206",
				fmt.Sprintf("solo se descartan borradores; la factura está %s", inv.Status))
		}
		return repos.Invoices.SoftDelete(ctx, inv.ID, uc.now().UTC())
	})
}

// transition usa el lock de la cadena para no competir con una anulación simultánea.
func (uc *InvoiceUseCase) transition(ctx context.Context, issuerID, invoiceID, to string) (*dto.InvoiceResponse, error) {
	var out *entity.Invoice
	err := uc.tx.RunInChain(ctx, issuerID, func(repos repository.Repos, _ *entity.ChainHead) error {
		inv, err := uc.load(ctx, repos, issuerID, invoiceID)
		if err != nil {
			return err
		}
		if err := fiscal.CheckTransition(inv.Status, to); err != nil {
			return err
		}
		now := uc.now().UTC()
		if err := repos.Invoices.UpdateStatus(ctx, inv.ID, inv.Status, to, now); err != nil {
			return err
		}
		inv.Status = to
		inv.UpdatedAt = now
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("invoice_id", out.ID).Str("status", to).Msg("estado de factura actualizado")
	return toInvoiceResponse(out, nil), nil
}

// load devuelve la factura si pertenece al emisor; ErrNotFound en otro caso.
func (uc *InvoiceUseCase) load(ctx context.Context, repos repository.Repos, issuerID, invoiceID string) (*entity.Invoice, error) {
	return loadInvoice(ctx, repos, issuerID, invoiceID)
}

func loadInvoice(ctx context.Context, repos repository.Repos, issuerID, invoiceID string) (*entity.Invoice, error) {
	inv, err := repos.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.IssuerID != issuerID || inv.IsDeleted {
		return nil, fmt.Errorf("%w: factura %s", domain.ErrNotFound, invoiceID)
	}
	return inv, nil
}

// buildDraft valida la forma de la petición y calcula importes. Las reglas de emisión
// (NIF, límites, rectificativas) las aplica el validador al emitir.
func (uc *InvoiceUseCase) buildDraft(ctx context.Context, issuerID string, in dto.InvoiceRequest, now time.Time) (*entity.Invoice, []*entity.InvoiceDetail, error) {
	if !entity.ValidInvoiceType(in.Type) {
		return nil, nil, domain.NewValidationError("VAL003", fmt.Sprintf("tipo de factura desconocido: %q", in.Type))
	}
	if strings.TrimSpace(in.Series) == "" || strings.TrimSpace(in.Number) == "" {
		return nil, nil, domain.NewValidationError("VAL001", "serie y número son obligatorios")
	}
	if in.ClientID == "" {
		return nil, nil, domain.NewValidationError("VAL001", "el cliente es obligatorio")
	}
	client, err := uc.repos.Clients.GetByID(ctx, in.ClientID)
	if err != nil {
		return nil, nil, err
	}
	if client == nil || client.IssuerID != issuerID {
		return nil, nil, fmt.Errorf("%w: cliente %s", domain.ErrNotFound, in.ClientID)
	}

	details := make([]*entity.InvoiceDetail, 0, len(in.Lines))
	base := decimal.Zero
	for i, l := range in.Lines {
		if strings.TrimSpace(l.Description) == "" || l.Quantity.IsZero() {
			return nil, nil, domain.NewValidationError("VAL004",
				fmt.Sprintf("la línea %d necesita descripción y cantidad", i+1))
		}
		rate := l.TaxRate
		if rate.IsZero() {
			rate = in.TaxRate
		}
		d := &entity.InvoiceDetail{
			ID:          uuid.New().String(),
			Position:    i + 1,
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     rate,
		}
		base = base.Add(d.Subtotal())
		details = append(details, d)
	}
	if len(details) == 0 {
		if in.TaxableBase == nil {
			return nil, nil, domain.NewValidationError("VAL004", "se requieren líneas o base imponible")
		}
		base = in.TaxableBase.Round(2)
	}

	res, err := tax.ComputeSigned(base, in.TaxRate, in.WithholdingRate)
	if err != nil {
		return nil, nil, err
	}

	issueDate := now.Truncate(time.Second)
	if in.IssueDate != nil {
		issueDate = in.IssueDate.UTC().Truncate(time.Second)
	}
	return &entity.Invoice{
		IssuerID:          issuerID,
		ClientID:          in.ClientID,
		Series:            strings.TrimSpace(in.Series),
		Number:            strings.TrimSpace(in.Number),
		Type:              in.Type,
		IssueDate:         issueDate,
		OperationDate:     in.OperationDate,
		Concept:           in.Concept,
		Description:       in.Description,
		TaxableBase:       res.TaxableBase,
		TaxRate:           in.TaxRate,
		TaxAmount:         res.TaxAmount,
		WithholdingRate:   in.WithholdingRate,
		WithholdingAmount: res.WithholdingAmount,
		TotalAmount:       res.TotalAmount,
		CorrectiveReason:  strings.TrimSpace(in.CorrectiveReason),
		OriginalInvoiceID: in.OriginalInvoiceID,
		SummaryPeriod:     strings.TrimSpace(in.SummaryPeriod),
		DueDate:           in.DueDate,
		PaymentMethod:     in.PaymentMethod,
	}, details, nil
}
