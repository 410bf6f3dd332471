package exchange

import (
	"math/rand"
	"testing"

	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote_WithinVarianceBand(t *testing.T) {
	svc := NewService(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		q, err := svc.Quote("btcusd", types.SideBuy)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSD", q.Symbol)
		assert.InDelta(t, 67000, q.Price, 67000*0.025)
		assert.NotEmpty(t, q.VenueID)
	}
}

func TestQuote_UnknownSymbol(t *testing.T) {
	svc := NewService(rand.NewSource(1))

	_, err := svc.Quote("NOPE", types.SideSell)
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSymbols(t *testing.T) {
	svc := NewService(nil)
	assert.Contains(t, svc.Symbols(), "EURUSD")
	assert.Len(t, svc.Symbols(), len(referencePrices))
}
