package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
)

var (
	_ repository.InvoiceRepository     = (*invoiceRepo)(nil)
	_ repository.ClientRepository      = (*clientRepo)(nil)
	_ repository.IssuerRepository      = (*issuerRepo)(nil)
	_ repository.AttestationRepository = (*recordRepo)(nil)
	_ repository.ChainRepository       = (*chainRepo)(nil)
	_ repository.SubmissionRepository  = (*submissionRepo)(nil)
	_ repository.UserRepository        = (*userRepo)(nil)
)

func cloneInvoice(i *entity.Invoice) *entity.Invoice {
	c := *i
	return &c
}

func cloneDetail(d *entity.InvoiceDetail) *entity.InvoiceDetail {
	c := *d
	return &c
}

func cloneRecord(r *entity.AttestationRecord) *entity.AttestationRecord {
	c := *r
	return &c
}

func cloneSubmission(s *entity.Submission) *entity.Submission {
	c := *s
	return &c
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

type invoiceRepo struct{ t *session }

func (r *invoiceRepo) numberTaken(inv *entity.Invoice) bool {
	for _, other := range r.t.s.invoices {
		if other.ID != inv.ID && !other.IsDeleted && other.IssuerID == inv.IssuerID &&
			other.Series == inv.Series && other.Number == inv.Number {
			return true
		}
	}
	return false
}

func (r *invoiceRepo) Create(ctx context.Context, invoice *entity.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	c := cloneInvoice(invoice)
	return r.t.write(func() error {
		if _, ok := r.t.s.invoices[c.ID]; ok {
			return fmt.Errorf("%w: la factura %s ya existe", domain.ErrConflict, c.ID)
		}
		if r.numberTaken(c) {
			return fmt.Errorf("%w: la serie y número %s-%s ya existen", domain.ErrConflict, c.Series, c.Number)
		}
		return nil
	}, func() { r.t.s.invoices[c.ID] = c })
}

func (r *invoiceRepo) CreateDetail(ctx context.Context, detail *entity.InvoiceDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.New().String()
	}
	c := cloneDetail(detail)
	return r.t.write(nil, func() {
		r.t.s.details[c.InvoiceID] = append(r.t.s.details[c.InvoiceID], c)
	})
}

func (r *invoiceRepo) ReplaceDetails(ctx context.Context, invoiceID string, details []*entity.InvoiceDetail) error {
	list := make([]*entity.InvoiceDetail, 0, len(details))
	for _, d := range details {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		d.InvoiceID = invoiceID
		list = append(list, cloneDetail(d))
	}
	return r.t.write(nil, func() { r.t.s.details[invoiceID] = list })
}

func (r *invoiceRepo) UpdateDraft(ctx context.Context, invoice *entity.Invoice) error {
	c := cloneInvoice(invoice)
	return r.t.write(func() error {
		cur, ok := r.t.s.invoices[c.ID]
		if !ok || cur.IsDeleted || !cur.IsDraft() {
			return fmt.Errorf("%w: la factura %s ya no es un borrador", domain.ErrConflict, c.ID)
		}
		if r.numberTaken(c) {
			return fmt.Errorf("%w: la serie y número %s-%s ya existen", domain.ErrConflict, c.Series, c.Number)
		}
		return nil
	}, func() {
		cur := r.t.s.invoices[c.ID]
		c.Status = cur.Status
		c.IssuerID = cur.IssuerID
		c.CreatedAt = cur.CreatedAt
		r.t.s.invoices[c.ID] = c
	})
}

func (r *invoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	var out *entity.Invoice
	r.t.read(func() {
		if inv, ok := r.t.s.invoices[id]; ok {
			out = cloneInvoice(inv)
		}
	})
	return out, nil
}

func (r *invoiceRepo) GetDetailsByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.InvoiceDetail, error) {
	var out []*entity.InvoiceDetail
	r.t.read(func() {
		for _, d := range r.t.s.details[invoiceID] {
			out = append(out, cloneDetail(d))
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *invoiceRepo) ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.Invoice, error) {
	var out []*entity.Invoice
	r.t.read(func() {
		for _, inv := range r.t.s.invoices {
			if inv.IssuerID == issuerID && !inv.IsDeleted {
				out = append(out, cloneInvoice(inv))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), nil
}

func (r *invoiceRepo) MarkIssued(ctx context.Context, invoice *entity.Invoice) error {
	c := cloneInvoice(invoice)
	return r.t.write(func() error {
		cur, ok := r.t.s.invoices[c.ID]
		if !ok || cur.IsDeleted || !cur.IsDraft() || cur.IsAttested() {
			return fmt.Errorf("%w: la factura %s no está en borrador", domain.ErrConflict, c.ID)
		}
		for _, other := range r.t.s.invoices {
			if other.Fingerprint != "" && other.Fingerprint == c.Fingerprint {
				return fmt.Errorf("%w: huella duplicada", domain.ErrConflict)
			}
		}
		return nil
	}, func() {
		cur := r.t.s.invoices[c.ID]
		cur.Status = entity.InvoiceStatusIssued
		cur.PreviousFingerprint = c.PreviousFingerprint
		cur.Fingerprint = c.Fingerprint
		cur.AttestationID = c.AttestationID
		cur.QRPayload = c.QRPayload
		cur.CanonicalXML = c.CanonicalXML
		cur.SignatureBlock = c.SignatureBlock
		cur.Signed = c.Signed
		cur.SignedAt = c.SignedAt
		cur.ChainSeq = c.ChainSeq
		cur.SubmissionStatus = c.SubmissionStatus
		cur.UpdatedAt = c.UpdatedAt
	})
}

func (r *invoiceRepo) UpdateStatus(ctx context.Context, id, from, to string, at time.Time) error {
	return r.t.write(func() error {
		cur, ok := r.t.s.invoices[id]
		if !ok || cur.IsDeleted || cur.Status != from {
			return fmt.Errorf("%w: la factura %s no está en estado %s", domain.ErrConflict, id, from)
		}
		return nil
	}, func() {
		cur := r.t.s.invoices[id]
		cur.Status = to
		cur.UpdatedAt = at
	})
}

func (r *invoiceRepo) UpdateSubmissionStatus(ctx context.Context, id, status string) error {
	return r.t.write(nil, func() {
		if cur, ok := r.t.s.invoices[id]; ok {
			cur.SubmissionStatus = status
		}
	})
}

func (r *invoiceRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.t.write(func() error {
		cur, ok := r.t.s.invoices[id]
		if !ok || cur.IsDeleted || !cur.IsDraft() {
			return fmt.Errorf("%w: solo se pueden descartar borradores", domain.ErrConflict)
		}
		return nil
	}, func() {
		cur := r.t.s.invoices[id]
		cur.IsDeleted = true
		cur.DeletedAt = &at
		cur.UpdatedAt = at
	})
}

type clientRepo struct{ t *session }

func (r *clientRepo) Create(ctx context.Context, client *entity.Client) error {
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	c := *client
	return r.t.write(nil, func() { r.t.s.clients[c.ID] = &c })
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	var out *entity.Client
	r.t.read(func() {
		if c, ok := r.t.s.clients[id]; ok {
			cp := *c
			out = &cp
		}
	})
	return out, nil
}

func (r *clientRepo) GetByIssuerAndTaxID(ctx context.Context, issuerID, taxID string) (*entity.Client, error) {
	var out *entity.Client
	r.t.read(func() {
		for _, c := range r.t.s.clients {
			if c.IssuerID == issuerID && c.TaxID == taxID && (out == nil || c.CreatedAt.Before(out.CreatedAt)) {
				cp := *c
				out = &cp
			}
		}
	})
	return out, nil
}

func (r *clientRepo) ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.Client, error) {
	var out []*entity.Client
	r.t.read(func() {
		for _, c := range r.t.s.clients {
			if c.IssuerID == issuerID {
				cp := *c
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), nil
}

type issuerRepo struct{ t *session }

func (r *issuerRepo) Create(ctx context.Context, issuer *entity.Issuer) error {
	if issuer.ID == "" {
		issuer.ID = uuid.New().String()
	}
	c := *issuer
	return r.t.write(func() error {
		for _, other := range r.t.s.issuers {
			if other.TaxID == c.TaxID {
				return fmt.Errorf("%w: ya existe un emisor con NIF %s", domain.ErrConflict, c.TaxID)
			}
		}
		return nil
	}, func() { r.t.s.issuers[c.ID] = &c })
}

func (r *issuerRepo) GetByID(ctx context.Context, id string) (*entity.Issuer, error) {
	var out *entity.Issuer
	r.t.read(func() {
		if i, ok := r.t.s.issuers[id]; ok {
			cp := *i
			out = &cp
		}
	})
	return out, nil
}

func (r *issuerRepo) GetByTaxID(ctx context.Context, taxID string) (*entity.Issuer, error) {
	var out *entity.Issuer
	r.t.read(func() {
		for _, i := range r.t.s.issuers {
			if i.TaxID == taxID {
				cp := *i
				out = &cp
			}
		}
	})
	return out, nil
}

type recordRepo struct{ t *session }

func (r *recordRepo) Append(ctx context.Context, rec *entity.AttestationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	c := cloneRecord(rec)
	return r.t.write(func() error {
		for _, other := range r.t.s.records[c.IssuerID] {
			if other.PreviousFingerprint == c.PreviousFingerprint || other.Seq == c.Seq {
				return domain.NewChainIntegrityError("CHAIN001",
					fmt.Sprintf("bifurcación en la cadena del emisor %s (seq %d)", c.IssuerID, c.Seq))
			}
			if other.InvoiceID == c.InvoiceID && other.Kind == c.Kind {
				return fmt.Errorf("%w: la factura %s ya tiene registro %s", domain.ErrConflict, c.InvoiceID, c.Kind)
			}
		}
		return nil
	}, func() {
		list := append(r.t.s.records[c.IssuerID], c)
		sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
		r.t.s.records[c.IssuerID] = list
	})
}

func (r *recordRepo) ListByIssuer(ctx context.Context, issuerID string) ([]*entity.AttestationRecord, error) {
	var out []*entity.AttestationRecord
	r.t.read(func() {
		for _, rec := range r.t.s.records[issuerID] {
			out = append(out, cloneRecord(rec))
		}
	})
	return out, nil
}

func (r *recordRepo) GetByInvoice(ctx context.Context, invoiceID, kind string) (*entity.AttestationRecord, error) {
	var out *entity.AttestationRecord
	r.t.read(func() {
		for _, list := range r.t.s.records {
			for _, rec := range list {
				if rec.InvoiceID == invoiceID && rec.Kind == kind {
					out = cloneRecord(rec)
					return
				}
			}
		}
	})
	return out, nil
}

// Tamper sustituye un eslabón ya guardado. Solo existe para simular manipulaciones en
// las pruebas del verificador de cadena.
func (s *Store) Tamper(issuerID string, seq int64, fn func(rec *entity.AttestationRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records[issuerID] {
		if rec.Seq == seq {
			fn(rec)
			return true
		}
	}
	return false
}

// TamperInvoice igual que Tamper sobre una factura guardada.
func (s *Store) TamperInvoice(invoiceID string, fn func(inv *entity.Invoice)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if ok {
		fn(inv)
	}
	return ok
}

type chainRepo struct{ t *session }

func (r *chainRepo) LockHead(ctx context.Context, issuerID string) (*entity.ChainHead, error) {
	return r.GetHead(ctx, issuerID)
}

func (r *chainRepo) Advance(ctx context.Context, head *entity.ChainHead) error {
	c := *head
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	return r.t.write(func() error {
		cur, ok := r.t.s.heads[c.IssuerID]
		last := int64(0)
		if ok {
			last = cur.LastSeq
		}
		if c.LastSeq != last+1 {
			return domain.NewChainIntegrityError("CHAIN002",
				fmt.Sprintf("la cabecera de la cadena %s no está en seq %d", c.IssuerID, c.LastSeq-1))
		}
		return nil
	}, func() { r.t.s.heads[c.IssuerID] = &c })
}

func (r *chainRepo) GetHead(ctx context.Context, issuerID string) (*entity.ChainHead, error) {
	var out *entity.ChainHead
	r.t.read(func() {
		if h, ok := r.t.s.heads[issuerID]; ok {
			cp := *h
			out = &cp
		}
	})
	if out == nil {
		out = entity.NewChainHead(issuerID)
	}
	return out, nil
}

type submissionRepo struct{ t *session }

func (r *submissionRepo) Create(ctx context.Context, sub *entity.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	c := cloneSubmission(sub)
	return r.t.write(func() error {
		for _, other := range r.t.s.submissions {
			if other.AttestationID == c.AttestationID {
				return fmt.Errorf("%w: ya existe un envío para %s", domain.ErrConflict, c.AttestationID)
			}
		}
		return nil
	}, func() { r.t.s.submissions[c.ID] = c })
}

func (r *submissionRepo) Update(ctx context.Context, sub *entity.Submission) error {
	c := cloneSubmission(sub)
	return r.t.write(func() error {
		if _, ok := r.t.s.submissions[c.ID]; !ok {
			return fmt.Errorf("%w: envío %s", domain.ErrNotFound, c.ID)
		}
		return nil
	}, func() { r.t.s.submissions[c.ID] = c })
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*entity.Submission, error) {
	var out *entity.Submission
	r.t.read(func() {
		if s, ok := r.t.s.submissions[id]; ok {
			out = cloneSubmission(s)
		}
	})
	return out, nil
}

func (r *submissionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*entity.Submission, error) {
	var out []*entity.Submission
	r.t.read(func() {
		for _, s := range r.t.s.submissions {
			if s.Status == entity.SubmissionStatusPending && (s.NextAttemptAt == nil || !s.NextAttemptAt.After(now)) {
				out = append(out, cloneSubmission(s))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (r *submissionRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Submission, error) {
	var out []*entity.Submission
	r.t.read(func() {
		for _, s := range r.t.s.submissions {
			if s.InvoiceID == invoiceID {
				out = append(out, cloneSubmission(s))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type userRepo struct{ t *session }

func (r *userRepo) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	c := *user
	return r.t.write(func() error {
		for _, other := range r.t.s.users {
			if other.Email == c.Email {
				return fmt.Errorf("%w: el email %s ya está registrado", domain.ErrDuplicate, c.Email)
			}
		}
		return nil
	}, func() { r.t.s.users[c.ID] = &c })
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var out *entity.User
	r.t.read(func() {
		if u, ok := r.t.s.users[id]; ok {
			cp := *u
			out = &cp
		}
	})
	return out, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out *entity.User
	r.t.read(func() {
		for _, u := range r.t.s.users {
			if u.Email == email {
				cp := *u
				out = &cp
			}
		}
	})
	return out, nil
}

func (r *userRepo) ListByIssuer(ctx context.Context, issuerID string, limit, offset int) ([]*entity.User, error) {
	var out []*entity.User
	r.t.read(func() {
		for _, u := range r.t.s.users {
			if u.IssuerID == issuerID {
				cp := *u
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return page(out, limit, offset), nil
}
