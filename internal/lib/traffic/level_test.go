package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForIntensity(t *testing.T) {
	tests := []struct {
		value    float64
		expected Level
	}{
		{0, Low},
		{0.39, Low},
		{0.4, Medium},
		{0.649, Medium},
		{0.65, High},
		{0.849, High},
		{0.85, Severe},
		{1, Severe},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelForIntensity(tt.value), "intensity %v", tt.value)
	}
}

func TestLevelRankAndParse(t *testing.T) {
	assert.Less(t, Low.Rank(), Medium.Rank())
	assert.Less(t, Medium.Rank(), High.Rank())
	assert.Less(t, High.Rank(), Severe.Rank())

	assert.Equal(t, Severe, ParseLevel(" SEVERE "))
	assert.Equal(t, Low, ParseLevel("unknown"))
}
