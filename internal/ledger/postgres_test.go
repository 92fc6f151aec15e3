package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIDKeepsUnsignedRange(t *testing.T) {
	for _, id := range []uint64{0, 1, math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64} {
		n := numericTokenID(id)
		require.True(t, n.Valid)
		assert.Equal(t, int32(0), n.Exp)
		assert.GreaterOrEqual(t, n.Int.Sign(), 0, "token %d stored negative", id)

		got, err := parseTokenID(n.Int.String())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	assert.Equal(t, "18446744073709551615", numericTokenID(math.MaxUint64).Int.String())
}

func TestParseTokenIDRejectsNegative(t *testing.T) {
	_, err := parseTokenID("-1")
	assert.Error(t, err)
}
