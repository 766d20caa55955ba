package infoarena

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

// Infoarena renders dates with Romanian month abbreviations and
// two-digit years.
var monthEncodings = []string{
	"ian", "feb", "mar", "apr", "mai", "iun",
	"iul", "aug", "sep", "oct", "nov", "dec",
}

var tagDict = map[string]string{
	"Structuri de Date": "data_structures",
	"Geometrie":         "geometry",
	"Matematica":        "math",
	"Grafuri":           "graphs",
	"Sortare":           "sorting",
}

var (
	timeLimitRe   = regexp.MustCompile(`(\d+(\.\d+)?) sec`)
	memoryLimitRe = regexp.MustCompile(`(\d+) kbytes`)
	scoreRe       = regexp.MustCompile(`Evaluare completa: (\d+) puncte`)
	sourceSizeRe  = regexp.MustCompile(`(\d+\.\d\d) kb`)
)

func parseTag(tagText string) (string, bool) {
	tag, ok := tagDict[tagText]
	if !ok {
		logger.Logger.Warn("unknown tag", "tag", tagText)
		return "", false
	}
	return tag, true
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
	return strconv.Atoi(match[1])
}

// parseScore extracts the score from a full-evaluation verdict text;
// partially evaluated rows carry no score.
func parseScore(verdictText string) *float64 {
	match := scoreRe.FindStringSubmatch(verdictText)
	if match == nil {
		return nil
	}
	points, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &points
}

// parseVerdict maps the monitor's verdict text. Full evaluation at 100
// points is the only accepted outcome; everything else except compile
// errors is a wrong answer.
func parseVerdict(verdictText string) (string, bool) {
	if !strings.Contains(verdictText, ":") {
		return "", false
	}

	verdict, points, _ := strings.Cut(verdictText, ":")
	verdict = strings.TrimSpace(verdict)
	points = strings.TrimSpace(points)

	switch verdict {
	case "Evaluare completa":
		if points == "100 puncte" {
			return "AC", true
		}
		return "WA", true
	case "Eroare de compilare":
		return "CE", true
	}
	return "WA", true
}

func parseDate(dateText string) (time.Time, error) {
	fields := strings.Fields(dateText)
	if len(fields) != 4 {
		return time.Time{}, fmt.Errorf("cannot parse date: %q", dateText)
	}

	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse date: %q", dateText)
	}

	month := 0
	for i, encoding := range monthEncodings {
		if fields[1] == encoding {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return time.Time{}, fmt.Errorf("cannot parse month in date: %q", dateText)
	}

	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse date: %q", dateText)
	}

	clock := strings.Split(fields[3], ":")
	if len(clock) != 3 {
		return time.Time{}, fmt.Errorf("cannot parse time in date: %q", dateText)
	}
	hour, err1 := strconv.Atoi(clock[0])
	minute, err2 := strconv.Atoi(clock[1])
	second, err3 := strconv.Atoi(clock[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("cannot parse time in date: %q", dateText)
	}

	return time.Date(2000+year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

func parseSourceSize(sourceText string) (int, error) {
	match := sourceSizeRe.FindStringSubmatch(sourceText)
	if match == nil {
		return 0, fmt.Errorf("could not parse source size: %q", sourceText)
	}
	kb, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, err
	}
	return int(kb * 1000), nil
}
