package fiscal_test

import (
	"errors"
	"testing"

	"github.com/jhoicas/facturae-api/internal/domain"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/fiscal"
	"github.com/stretchr/testify/assert"
)

func TestCheckTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{entity.InvoiceStatusDraft, entity.InvoiceStatusIssued, true},
		{entity.InvoiceStatusIssued, entity.InvoiceStatusPaid, true},
		{entity.InvoiceStatusIssued, entity.InvoiceStatusOverdue, true},
		{entity.InvoiceStatusIssued, entity.InvoiceStatusCancelled, true},
		{entity.InvoiceStatusOverdue, entity.InvoiceStatusPaid, true},
		{entity.InvoiceStatusDraft, entity.InvoiceStatusCancelled, false},
		{entity.InvoiceStatusCancelled, entity.InvoiceStatusCancelled, false},
		{entity.InvoiceStatusCancelled, entity.InvoiceStatusIssued, false},
		{entity.InvoiceStatusPaid, entity.InvoiceStatusCancelled, false},
		{entity.InvoiceStatusIssued, entity.InvoiceStatusDraft, false},
	}
	for _, tc := range cases {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			err := fiscal.CheckTransition(tc.from, tc.to)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func TestEnsureMutable(t *testing.T) {
	assert.NoError(t, fiscal.EnsureMutable(&entity.Invoice{Status: entity.InvoiceStatusDraft}))
	for _, s := range []string{entity.InvoiceStatusIssued, entity.InvoiceStatusPaid, entity.InvoiceStatusOverdue, entity.InvoiceStatusCancelled} {
		assert.Error(t, fiscal.EnsureMutable(&entity.Invoice{Status: s}), s)
	}
}
