// Package judge defines the canonical vocabulary shared by every judge
// adapter: judge identifiers, the six-way verdict enum, and the raw
// record types adapters yield before normalization.
package judge

import (
	"strings"
	"time"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

// Stable judge identifiers. These are persisted as natural keys and
// must never change.
const (
	Codeforces = "cf"
	Infoarena  = "ia"
	CSAcademy  = "csa"
	AtCoder    = "ac"
	Ojuz       = "ojuz"
	Timus      = "timus"
)

func KnownJudges() []string {
	return []string{Codeforces, Infoarena, CSAcademy, AtCoder, Ojuz, Timus}
}

func Known(judgeID string) bool {
	for _, id := range KnownJudges() {
		if id == judgeID {
			return true
		}
	}
	return false
}

type Verdict string

const (
	VerdictAccepted            Verdict = "AC"
	VerdictCompileError        Verdict = "CE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictRuntimeError        Verdict = "RE"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictWrongAnswer         Verdict = "WA"
)

// MapVerdict translates a judge-native verdict through the adapter's
// vocabulary table. Unknown verdicts are logged and default to WA, they
// are never dropped.
func MapVerdict(table map[string]Verdict, text string) Verdict {
	if verdict, ok := table[text]; ok {
		return verdict
	}

	logger.Logger.Warn("unknown verdict, defaulting to WA", "verdict", text)
	return VerdictWrongAnswer
}

// Canonical method tag ids. Judge-specific tag vocabularies are mapped
// onto this set; tags outside it are logged and dropped, never invented.
var MethodTags = map[string]bool{
	"bitmask":         true,
	"brute":           true,
	"constructive":    true,
	"data_structures": true,
	"dp":              true,
	"flow":            true,
	"geometry":        true,
	"graphs":          true,
	"greedy":          true,
	"implementation":  true,
	"math":            true,
	"number_theory":   true,
	"search":          true,
	"sorting":         true,
	"strings":         true,
	"trees":           true,
}

// Submission is a raw per-judge submission record. Numeric fields that a
// judge may omit are pointers so the sink can tell "absent" from zero
// and never overwrite good data with defaults.
type Submission struct {
	JudgeID      string
	SubmissionID string
	TaskID       string
	AuthorID     string
	SubmittedOn  time.Time
	Language     string
	Verdict      Verdict
	Score        *float64
	SourceSize   *int
	ExecTime     *int // milliseconds
	MemoryUsed   *int // kilobytes
}

type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type Statement struct {
	Text       string
	Examples   []Example
	InputFile  string
	OutputFile string
}

// TaskInfo is a raw per-judge task record. Limits are already converted
// to milliseconds/kilobytes by the adapter's judge-specific table.
type TaskInfo struct {
	JudgeID     string
	TaskID      string
	Title       string
	TimeLimit   *int // milliseconds
	MemoryLimit *int // kilobytes
	Tags        []string
	Source      string
	Statement   *Statement
}

type UserInfo struct {
	JudgeID   string
	Handle    string
	FirstName string
	LastName  string
	PhotoURL  *string
	Rating    *int
}

// SplitName splits a display name heuristically: single-token names
// have no last name.
func SplitName(fullName string) (string, string) {
	fields := strings.Fields(fullName)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}

	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}
