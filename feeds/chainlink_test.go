package feeds

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeRoundData(roundID, answer, updatedAt int64) []byte {
	data := make([]byte, 160)
	big.NewInt(roundID).FillBytes(data[0:32])
	big.NewInt(answer).FillBytes(data[32:64])
	big.NewInt(updatedAt).FillBytes(data[96:128])
	return data
}

func TestParseRoundData(t *testing.T) {
	data := encodeRoundData(42, 6_700_050_000_000, 1_700_000_000)

	round, err := parseRoundData(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), round.roundID.Int64())
	assert.Equal(t, int64(6_700_050_000_000), round.answer.Int64())
	assert.Equal(t, int64(1_700_000_000), round.updatedAt)
}

func TestParseRoundData_ShortPayload(t *testing.T) {
	_, err := parseRoundData(make([]byte, 64))
	assert.Error(t, err)
}

func TestToPrice_ScalesAggregatorDecimals(t *testing.T) {
	c := &ChainlinkClient{scale: big.NewFloat(1e8)}
	assert.InDelta(t, 67000.5, c.toPrice(big.NewInt(6_700_050_000_000)), 1e-6)
}
