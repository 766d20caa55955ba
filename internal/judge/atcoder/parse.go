package atcoder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cpaggregator/cpaggregator/internal/judge"
)

// AtCoder already abbreviates verdicts the canonical way.
var verdictDict = map[string]judge.Verdict{
	"AC":  judge.VerdictAccepted,
	"WA":  judge.VerdictWrongAnswer,
	"TLE": judge.VerdictTimeLimitExceeded,
	"MLE": judge.VerdictMemoryLimitExceeded,
	"RE":  judge.VerdictRuntimeError,
	"CE":  judge.VerdictCompileError,
}

var (
	timeLimitRe   = regexp.MustCompile(`^ *Time Limit: (\d+(\.\d+)?) sec *$`)
	memoryLimitRe = regexp.MustCompile(`^ *Memory Limit: (\d+) MB *$`)
)

func parseVerdict(verdictText string) judge.Verdict {
	return judge.MapVerdict(verdictDict, verdictText)
}

// parseTitle strips the "A - " prefix from a task heading.
func parseTitle(titleText string) (string, error) {
	if len(titleText) < 4 || titleText[1:4] != " - " {
		return "", fmt.Errorf("cannot parse title %q", titleText)
	}
	return strings.TrimSpace(titleText[4:]), nil
}

func parseTimeLimit(text string) (int, error) {
	match := timeLimitRe.FindStringSubmatch(text)
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
	match := memoryLimitRe.FindStringSubmatch(text)
	if match == nil {
		return 0, fmt.Errorf("cannot parse memory limit: %q", text)
	}
	megabytes, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, err
	}
	return megabytes * 1024, nil
}
