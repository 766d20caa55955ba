package codeforces

import (
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

// Codeforces problem tags onto canonical method tags. Unknown tags are
// logged and dropped.
var tagDict = map[string]string{
	"graphs":                    "graphs",
	"graph matchings":           "graphs",
	"shortest paths":            "graphs",
	"bitmasks":                  "bitmask",
	"constructive algorithms":   "constructive",
	"greedy":                    "greedy",
	"brute force":               "brute",
	"chinese remainder theorem": "number_theory",
	"number theory":             "number_theory",
	"math":                      "math",
	"trees":                     "trees",
	"data structures":           "data_structures",
	"implementation":            "implementation",
	"strings":                   "strings",
	"string suffix structures":  "strings",
	"geometry":                  "geometry",
	"binary search":             "search",
	"ternary search":            "search",
	"dp":                        "dp",
	"flows":                     "flow",
	"sortings":                  "sorting",
}

var verdictDict = map[string]judge.Verdict{
	"OK":                    judge.VerdictAccepted,
	"COMPILATION_ERROR":     judge.VerdictCompileError,
	"RUNTIME_ERROR":         judge.VerdictRuntimeError,
	"TIME_LIMIT_EXCEEDED":   judge.VerdictTimeLimitExceeded,
	"MEMORY_LIMIT_EXCEEDED": judge.VerdictMemoryLimitExceeded,
	"WRONG_ANSWER":          judge.VerdictWrongAnswer,
}

func parseVerdict(verdictText string) judge.Verdict {
	return judge.MapVerdict(verdictDict, verdictText)
}

func parseTags(tagTexts []string) []string {
	var tags []string
	for _, text := range tagTexts {
		tag, ok := tagDict[text]
		if !ok {
			logger.Logger.Warn("unknown tag", "tag", text)
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}
