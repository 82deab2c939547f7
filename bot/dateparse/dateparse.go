package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	ordinalRe = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)
	yearRe    = regexp.MustCompile(`\b\d{4}\b`)

	// strict layouts tried before the natural-language fallback
	layouts = []string{
		"2006-1-2",
		"2006-01-02",
		"2 Jan 2006",
		"Jan 2 2006",
	}

	nlp = buildNLP()
)

func buildNLP() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse interprets free-form user input as a calendar date. It normalizes
// case and ordinal suffixes, tries strict layouts first (appending the
// current year when none is given), and falls back to natural-language
// parsing. The returned time is the date at midnight.
func Parse(input string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return time.Time{}, false
	}
	if s == "today" {
		return midnight(now), true
	}

	s = ordinalRe.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(s), " ")
	cand := titleWords(s)
	if !yearRe.MatchString(cand) {
		cand += " " + strconv.Itoa(now.Year())
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cand); err == nil {
			return midnight(t), true
		}
	}

	if r, err := nlp.Parse(input, now); err == nil && r != nil {
		return midnight(r.Time), true
	}
	return time.Time{}, false
}

// titleWords capitalizes alphabetic tokens so month abbreviations match
// time.Parse layouts after lowercasing.
func titleWords(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == "" {
			continue
		}
		r := []rune(f)
		if r[0] >= 'a' && r[0] <= 'z' {
			r[0] = r[0] - 'a' + 'A'
			fields[i] = string(r)
		}
	}
	return strings.Join(fields, " ")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
