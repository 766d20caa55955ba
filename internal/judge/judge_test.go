package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapVerdict(t *testing.T) {
	table := map[string]Verdict{
		"Accepted":            VerdictAccepted,
		"Time limit exceeded": VerdictTimeLimitExceeded,
	}

	t.Run("KnownVerdict", func(t *testing.T) {
		assert.Equal(t, VerdictAccepted, MapVerdict(table, "Accepted"))
		assert.Equal(t, VerdictTimeLimitExceeded, MapVerdict(table, "Time limit exceeded"))
	})

	t.Run("UnknownVerdictDefaultsToWrongAnswer", func(t *testing.T) {
		assert.Equal(t, VerdictWrongAnswer, MapVerdict(table, "Judgement failed"))
	})
}

func TestKnown(t *testing.T) {
	for _, judgeID := range KnownJudges() {
		assert.True(t, Known(judgeID))
	}
	assert.False(t, Known("spoj"))
	assert.False(t, Known(""))
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name      string
		fullName  string
		wantFirst string
		wantLast  string
	}{
		{"Empty", "", "", ""},
		{"SingleToken", "tourist", "tourist", ""},
		{"TwoTokens", "Gennady Korotkevich", "Gennady", "Korotkevich"},
		{"ThreeTokens", "Ana Maria Popescu", "Ana Maria", "Popescu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := SplitName(tt.fullName)
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantLast, last)
		})
	}
}
