package gateway_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturae-api/internal/infrastructure/gateway"
)

func TestSimulatedGateway_Idempotente(t *testing.T) {
	gw := gateway.NewSimulatedGateway(zerolog.Nop())
	ctx := context.Background()

	st, err := gw.CheckStatus(ctx, sample.AttestationID)
	require.NoError(t, err)
	assert.Equal(t, "unknown", st.Status)

	first, err := gw.Submit(ctx, sample)
	require.NoError(t, err)
	second, err := gw.Submit(ctx, sample)
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	assert.Equal(t, first.ReferenceID, second.ReferenceID)

	st, err = gw.CheckStatus(ctx, sample.AttestationID)
	require.NoError(t, err)
	assert.True(t, st.Accepted)
	assert.Equal(t, "accepted", st.Status)

	_, err = gw.Cancel(ctx, sample)
	require.NoError(t, err)
	st, _ = gw.CheckStatus(ctx, sample.AttestationID)
	assert.Equal(t, "cancelled", st.Status)
}
