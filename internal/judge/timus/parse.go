package timus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cpaggregator/cpaggregator/internal/judge"
)

const submittedOnLayout = "15:04:05 2 Jan 2006"

var verdictDict = map[string]judge.Verdict{
	"Accepted":              judge.VerdictAccepted,
	"Wrong answer":          judge.VerdictWrongAnswer,
	"Time limit exceeded":   judge.VerdictTimeLimitExceeded,
	"Memory limit exceeded": judge.VerdictMemoryLimitExceeded,
	"Compilation error":     judge.VerdictCompileError,
}

var (
	timeLimitRe   = regexp.MustCompile(`^Time limit: ([\d.]*) second$`)
	memoryLimitRe = regexp.MustCompile(`^Memory limit: ([\d.]*) MB$`)
)

func parseVerdict(verdictText string) judge.Verdict {
	if strings.Contains(strings.ToLower(verdictText), "runtime error") {
		return judge.VerdictRuntimeError
	}
	return judge.MapVerdict(verdictDict, verdictText)
}

// The status table splits the date over two lines: clock, then date.
func parseDate(clockText, dateText string) (time.Time, error) {
	submittedOn, err := time.Parse(submittedOnLayout, clockText+" "+dateText)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse date %q %q: %w", clockText, dateText, err)
	}
	return submittedOn.UTC(), nil
}

func parseExecTime(text string) (int, error) {
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse execution time %q", text)
	}
	return int(seconds * 1000), nil
}

// Memory renders with space thousands separators, e.g. "1 024 KB".
func parseMemoryUsed(text string) (int, error) {
	fields := strings.Fields(strings.ReplaceAll(text, "\u00a0", " "))
	if len(fields) < 2 || fields[len(fields)-1] != "KB" {
		return 0, fmt.Errorf("cannot parse memory %q", text)
	}
	return strconv.Atoi(strings.Join(fields[:len(fields)-1], ""))
}

func parseTimeLimit(text string) (int, error) {
	match := timeLimitRe.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0, fmt.Errorf("cannot parse time limit: %q", text)
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, err
	}
	return int(1000 * seconds), nil
}

func parseMemoryLimit(text string) (int, error) {
	match := memoryLimitRe.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0, fmt.Errorf("cannot parse memory limit: %q", text)
	}
	megabytes, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, err
	}
	return int(megabytes * 1024), nil
}
