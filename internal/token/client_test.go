package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10", formatAmount(10))
	assert.Equal(t, "7190.5", formatAmount(7190.5))
	// On-chain amounts carry at most six decimals.
	assert.Equal(t, "0.123457", formatAmount(0.123456789))
}
