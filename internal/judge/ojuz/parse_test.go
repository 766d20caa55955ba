package ojuz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpaggregator/cpaggregator/internal/judge"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		text string
		want judge.Verdict
	}{
		{"FullScore", "100 / 100", judge.VerdictAccepted},
		{"PartialScore", "33 / 100", judge.VerdictWrongAnswer},
		{"ZeroScore", "0 / 100", judge.VerdictWrongAnswer},
		{"CompileError", "Compilation error", judge.VerdictCompileError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseVerdict(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict)
		})
	}

	t.Run("Malformed", func(t *testing.T) {
		_, err := parseVerdict("pending")
		assert.Error(t, err)
	})
}

func TestParseScore(t *testing.T) {
	t.Run("RoundsFractionalPoints", func(t *testing.T) {
		score, err := parseScore("66.67 / 100")
		require.NoError(t, err)
		assert.InDelta(t, 67.0, score, 1e-9)
	})

	t.Run("CompileErrorScoresZero", func(t *testing.T) {
		score, err := parseScore("Compilation error")
		require.NoError(t, err)
		assert.Zero(t, score)
	})
}

func TestParseDate(t *testing.T) {
	date, err := parseDate("2023-08-14T09:30:11 Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.August, 14, 9, 30, 11, 0, time.UTC), date)

	_, err = parseDate("14.08.2023")
	assert.Error(t, err)
}

func TestParseUnits(t *testing.T) {
	t.Run("ExecTime", func(t *testing.T) {
		ms, err := parseExecTime("123 ms")
		require.NoError(t, err)
		assert.Equal(t, 123, ms)
	})

	t.Run("MemoryUsed", func(t *testing.T) {
		kb, err := parseMemoryUsed("4520 KB")
		require.NoError(t, err)
		assert.Equal(t, 4520, kb)
	})

	t.Run("MemoryLimit", func(t *testing.T) {
		kb, err := parseMemoryLimit("256 MiB")
		require.NoError(t, err)
		assert.Equal(t, 262144, kb)
	})

	t.Run("WrongUnit", func(t *testing.T) {
		_, err := parseExecTime("123 s")
		assert.Error(t, err)
	})
}
