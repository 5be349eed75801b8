package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/facturae-api/internal/application/dto"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Códigos de incidencia de la cadena.
const (
	ViolationGap      = "CHAIN_GAP"      // seq no consecutivo
	ViolationGenesis  = "CHAIN_GENESIS"  // el primer eslabón no parte del génesis
	ViolationLink     = "CHAIN_LINK"     // huella anterior distinta de la del eslabón previo
	ViolationFork     = "CHAIN_FORK"     // dos eslabones con la misma huella anterior
	ViolationHash     = "CHAIN_HASH"     // la huella recalculada no coincide
	ViolationHead     = "CHAIN_HEAD"     // la cabecera no apunta al último eslabón
	ViolationMismatch = "CHAIN_MISMATCH" // el eslabón no coincide con la factura
)

// ChainVerifier recorre la cadena completa de un emisor y recalcula cada huella. No repara
// nada: cualquier incidencia exige conciliación manual.
type ChainVerifier struct {
	repos  repository.Repos
	hasher fiscal.Hasher
	log    zerolog.Logger
}

// NewChainVerifier construye el verificador.
func NewChainVerifier(repos repository.Repos, hasher fiscal.Hasher, log zerolog.Logger) *ChainVerifier {
	if hasher == nil {
		hasher = fiscal.SHA256Hasher{}
	}
	return &ChainVerifier{repos: repos, hasher: hasher, log: log}
}

// Verify devuelve el informe de la cadena del emisor. Las incidencias se registran con
// nivel ERROR; el error solo se usa para fallos de lectura.
func (v *ChainVerifier) Verify(ctx context.Context, issuerID string) (*dto.ChainReportResponse, error) {
	records, err := v.repos.Records.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	head, err := v.repos.Chains.GetHead(ctx, issuerID)
	if err != nil {
		return nil, err
	}

	report := &dto.ChainReportResponse{IssuerID: issuerID, Records: len(records)}
	add := func(seq int64, code, format string, args ...any) {
		report.Violations = append(report.Violations, dto.ChainViolation{
			Seq: seq, Code: code, Message: fmt.Sprintf(format, args...),
		})
	}

	seen := make(map[string]int64, len(records))
	prevFP := entity.GenesisFingerprint
	var prevSeq int64
	for i, rec := range records {
		if rec.Seq != prevSeq+1 {
			add(rec.Seq, ViolationGap, "se esperaba seq %d", prevSeq+1)
		}
		if other, dup := seen[rec.PreviousFingerprint]; dup {
			add(rec.Seq, ViolationFork, "comparte huella anterior con seq %d", other)
		} else {
			seen[rec.PreviousFingerprint] = rec.Seq
		}
		switch {
		case i == 0 && rec.PreviousFingerprint != entity.GenesisFingerprint:
			add(rec.Seq, ViolationGenesis, "el primer eslabón no enlaza con el génesis")
		case i > 0 && rec.PreviousFingerprint != prevFP:
			add(rec.Seq, ViolationLink, "huella anterior %s, se esperaba %s",
				fiscal.ShortFingerprint(rec.PreviousFingerprint), fiscal.ShortFingerprint(prevFP))
		}
		v.checkRecord(ctx, rec, add)
		prevFP, prevSeq = rec.Fingerprint, rec.Seq
	}

	report.LastSeq = head.LastSeq
	report.LastFingerprint = head.LastFingerprint
	if head.LastSeq != prevSeq || head.LastFingerprint != prevFP {
		add(head.LastSeq, ViolationHead, "la cabecera apunta a seq %d y el último eslabón es %d", head.LastSeq, prevSeq)
	}
	report.Valid = len(report.Violations) == 0

	for _, viol := range report.Violations {
		v.log.Error().
			Str("issuer_id", issuerID).
			Int64("seq", viol.Seq).
			Str("code", viol.Code).
			Msg("integridad de la cadena comprometida: " + viol.Message)
	}
	if report.Valid {
		v.log.Info().Str("issuer_id", issuerID).Int("records", report.Records).Msg("cadena verificada")
	}
	return report, nil
}

// checkRecord recalcula la huella del eslabón a partir de la factura registrada.
func (v *ChainVerifier) checkRecord(ctx context.Context, rec *entity.AttestationRecord, add func(int64, string, string, ...any)) {
	inv, err := v.repos.Invoices.GetByID(ctx, rec.InvoiceID)
	if err != nil || inv == nil {
		add(rec.Seq, ViolationMismatch, "factura %s no encontrada", rec.InvoiceID)
		return
	}

	switch rec.Kind {
	case entity.RecordKindIssue:
		if inv.Fingerprint != rec.Fingerprint || inv.PreviousFingerprint != rec.PreviousFingerprint {
			add(rec.Seq, ViolationMismatch, "la factura %s guarda otra huella", inv.ID)
		}
		taxID := ""
		if client, err := v.repos.Clients.GetByID(ctx, inv.ClientID); err == nil && client != nil {
			taxID = client.TaxID
		}
		in := fiscal.NewInput(inv, taxID)
		if got := v.hasher.Fingerprint(in, rec.PreviousFingerprint); got != rec.Fingerprint {
			add(rec.Seq, ViolationHash, "huella recalculada %s, registrada %s",
				fiscal.ShortFingerprint(got), fiscal.ShortFingerprint(rec.Fingerprint))
		}
	case entity.RecordKindCancel:
		if rec.ReferenceFingerprint != inv.Fingerprint {
			add(rec.Seq, ViolationMismatch, "la anulación referencia otra huella que la del alta de %s", inv.ID)
		}
		in := fiscal.CancellationInput{
			Series:               inv.Series,
			Number:               inv.Number,
			CancelledAt:          rec.CreatedAt,
			CancelledFingerprint: rec.ReferenceFingerprint,
		}
		if got := v.hasher.CancellationFingerprint(in, rec.PreviousFingerprint); got != rec.Fingerprint {
			add(rec.Seq, ViolationHash, "huella de anulación recalculada %s, registrada %s",
				fiscal.ShortFingerprint(got), fiscal.ShortFingerprint(rec.Fingerprint))
		}
	default:
		add(rec.Seq, ViolationMismatch, "tipo de registro desconocido %q", rec.Kind)
	}
}
