package worker

import (
	"regexp"
	"strconv"
	"strings"
)

// Regex fallbacks for when the model is unavailable. They understand the
// Indian shorthand customers actually type: "3 lakh", "3.5l", "50k", and
// plain rupee figures.
var (
	lakhAmount  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:lakhs?|lacs?|l\b)`)
	thousandK   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*k\b`)
	plainAmount = regexp.MustCompile(`\d[\d,]{3,}`)

	tenureYears  = regexp.MustCompile(`(?i)(\d+)\s*(?:years?|yrs?)`)
	tenureMonths = regexp.MustCompile(`(?i)(\d+)\s*(?:months?|mos?)`)
)

// extractAmount pulls a rupee amount out of free text. The second return is
// false when nothing usable is present.
func extractAmount(text string) (float64, bool) {
	if m := lakhAmount.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v * 100000, true
		}
	}
	if m := thousandK.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v * 1000, true
		}
	}
	if m := plainAmount.FindString(text); m != "" {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err == nil && v >= 1000 {
			return v, true
		}
	}
	return 0, false
}

func extractTenureMonths(text string) (int, bool) {
	if m := tenureYears.FindStringSubmatch(text); m != nil {
		v, err := strconv.Atoi(m[1])
		if err == nil && v > 0 {
			return v * 12, true
		}
	}
	if m := tenureMonths.FindStringSubmatch(text); m != nil {
		v, err := strconv.Atoi(m[1])
		if err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}

var declinePhrases = []string{
	"not interested",
	"no thanks",
	"no thank you",
	"don't want",
	"dont want",
	"don't need",
	"dont need",
	"cancel",
	"stop",
	"leave me alone",
	"go away",
	"not now",
}

// isDecline reports whether the customer is walking away from the offer.
func isDecline(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range declinePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

var deferPhrases = []string{
	"later",
	"not now",
	"not right now",
	"don't have it",
	"dont have it",
	"will send",
	"i'll send",
	"ill send",
	"next week",
	"tomorrow",
}

// isDefer reports whether the customer wants to supply the document another
// day rather than refusing outright.
func isDefer(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range deferPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

var documentPhrases = []string{
	"salary slip",
	"payslip",
	"pay slip",
	"attached",
	"uploaded",
	"sharing",
	"here it is",
	"sent",
}

// mentionsDocument reports whether the message plausibly carries or
// announces the requested income proof.
func mentionsDocument(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range documentPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
