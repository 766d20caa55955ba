package ojuz

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cpaggregator/cpaggregator/internal/judge"
)

const submittedOnLayout = "2006-01-02T15:04:05 Z"

func parseDate(dateText string) (time.Time, error) {
	submittedOn, err := time.Parse(submittedOnLayout, dateText)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse date %q: %w", dateText, err)
	}
	return submittedOn.UTC(), nil
}

func parseUnitValue(text, unit string) (int, error) {
	value, gotUnit, found := strings.Cut(strings.TrimSpace(text), " ")
	if !found || gotUnit != unit {
		return 0, fmt.Errorf("expected %q value, got %q", unit, text)
	}
	return strconv.Atoi(value)
}

func parseExecTime(text string) (int, error) {
	return parseUnitValue(text, "ms")
}

func parseMemoryUsed(text string) (int, error) {
	return parseUnitValue(text, "KB")
}

func parseTimeLimit(text string) (int, error) {
	return parseUnitValue(text, "ms")
}

func parseMemoryLimit(text string) (int, error) {
	mib, err := parseUnitValue(text, "MiB")
	if err != nil {
		return 0, err
	}
	return mib * 1024, nil
}

// Verdicts render as "earned / total" points; full score is accepted.
func parseVerdict(verdictText string) (judge.Verdict, error) {
	if verdictText == "Compilation error" {
		return judge.VerdictCompileError, nil
	}
	earned, total, err := splitScore(verdictText)
	if err != nil {
		return "", err
	}
	if earned == total {
		return judge.VerdictAccepted, nil
	}
	return judge.VerdictWrongAnswer, nil
}

func parseScore(verdictText string) (float64, error) {
	if verdictText == "Compilation error" {
		return 0, nil
	}
	earned, _, err := splitScore(verdictText)
	if err != nil {
		return 0, err
	}
	return math.Round(earned), nil
}

func splitScore(verdictText string) (float64, float64, error) {
	fields := strings.Fields(verdictText)
	if len(fields) != 3 || fields[1] != "/" {
		return 0, 0, fmt.Errorf("cannot parse verdict %q", verdictText)
	}
	earned, err1 := strconv.ParseFloat(fields[0], 64)
	total, err2 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("cannot parse verdict %q", verdictText)
	}
	return earned, total, nil
}
