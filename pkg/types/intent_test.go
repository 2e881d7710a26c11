package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const owner = "0x1111111111111111111111111111111111111111"

func TestNewIntentDefaultsSourceTicker(t *testing.T) {
	in := NewIntent(IntentDeposit, owner, 1, 42161, "", "usdc", "1000000")
	require.Equal(t, "USDC", in.SourceTicker)
	require.Equal(t, "USDC", in.DestTicker)

	in = NewIntent(IntentDeposit, owner, 1, 1, "usdt", "usdc", "1000000")
	require.Equal(t, "USDT", in.SourceTicker)
}

func TestNeedsRouting(t *testing.T) {
	require.False(t, NewIntent(IntentDeposit, owner, 1, 1, "", "USDC", "1").NeedsRouting())
	require.True(t, NewIntent(IntentDeposit, owner, 1, 42161, "", "USDC", "1").NeedsRouting())
	require.True(t, NewIntent(IntentDeposit, owner, 1, 1, "USDT", "USDC", "1").NeedsRouting())
}

func TestValidate(t *testing.T) {
	valid := NewIntent(IntentWithdraw, owner, 1, 1, "", "USDC", "1000000")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"bad kind", func(in *Intent) { in.Kind = "stake" }},
		{"no owner", func(in *Intent) { in.OwnerAddress = "" }},
		{"no source chain", func(in *Intent) { in.SourceChain = 0 }},
		{"no dest chain", func(in *Intent) { in.DestChain = 0 }},
		{"no dest ticker", func(in *Intent) { in.DestTicker = "" }},
		{"non-numeric amount", func(in *Intent) { in.AmountAtomic = "ten" }},
		{"zero amount", func(in *Intent) { in.AmountAtomic = "0" }},
		{"negative amount", func(in *Intent) { in.AmountAtomic = "-5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewIntent(IntentWithdraw, owner, 1, 1, "", "USDC", "1000000")
			tt.mutate(in)
			require.Error(t, in.Validate())
		})
	}
}
