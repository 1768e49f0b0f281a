// Package validation checks form values against per-field rule lists before
// a form is submitted. Rules are written the way forms declare them in their
// data-rules attribute, e.g. "required|minLength:3|email".
package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrUnknownRule is returned when a rule list names a rule that does not exist.
var ErrUnknownRule = errors.New("unknown validation rule")

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\s\-()]{10,}$`)
)

// dateLayouts are tried in order when a rule needs a date.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// Rule is one parsed entry of a rule list.
type Rule struct {
	Name  string
	Param string

	n int // parsed Param of minLength/maxLength
}

type checkFunc func(value string, r Rule, now time.Time) bool

type definition struct {
	check    checkFunc
	message  func(r Rule) string
	needsInt bool
}

func fixed(msg string) func(Rule) string {
	return func(Rule) string { return msg }
}

var definitions = map[string]definition{
	"required": {
		check:   func(v string, _ Rule, _ time.Time) bool { return strings.TrimSpace(v) != "" },
		message: fixed("This field is required"),
	},
	"email": {
		check:   func(v string, _ Rule, _ time.Time) bool { return emailPattern.MatchString(v) },
		message: fixed("Please enter a valid email address"),
	},
	"phone": {
		check:   func(v string, _ Rule, _ time.Time) bool { return phonePattern.MatchString(v) },
		message: fixed("Please enter a valid phone number"),
	},
	"number": {
		check: func(v string, _ Rule, _ time.Time) bool {
			_, ok := parseNumber(v)
			return ok
		},
		message: fixed("Please enter a valid number"),
	},
	"positive": {
		check: func(v string, _ Rule, _ time.Time) bool {
			f, ok := parseNumber(v)
			return ok && f > 0
		},
		message: fixed("The number must be greater than zero"),
	},
	"minLength": {
		check:    func(v string, r Rule, _ time.Time) bool { return utf8.RuneCountInString(v) >= r.n },
		message:  func(r Rule) string { return fmt.Sprintf("Must be at least %d characters", r.n) },
		needsInt: true,
	},
	"maxLength": {
		check:    func(v string, r Rule, _ time.Time) bool { return utf8.RuneCountInString(v) <= r.n },
		message:  func(r Rule) string { return fmt.Sprintf("Must be at most %d characters", r.n) },
		needsInt: true,
	},
	"date": {
		check: func(v string, _ Rule, _ time.Time) bool {
			_, ok := parseDate(v)
			return ok
		},
		message: fixed("Please enter a valid date"),
	},
	"futureDate": {
		check: func(v string, _ Rule, now time.Time) bool {
			d, ok := parseDate(v)
			return ok && d.After(now)
		},
		message: fixed("The date must be in the future"),
	},
	"pastDate": {
		check: func(v string, _ Rule, now time.Time) bool {
			d, ok := parseDate(v)
			return ok && d.Before(now)
		},
		message: fixed("The date must be in the past"),
	},
}

// ParseRules parses a "|"-separated rule list. Parameters follow a colon.
func ParseRules(spec string) ([]Rule, error) {
	var rules []Rule
	for _, part := range strings.Split(spec, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, param, _ := strings.Cut(part, ":")
		def, ok := definitions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
		}

		r := Rule{Name: name, Param: param}
		if def.needsInt {
			n, err := strconv.Atoi(param)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("rule %s needs a non-negative integer parameter (got %q)", name, param)
			}
			r.n = n
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Check applies r to value. Only required looks at empty values; every
// other rule passes on an empty field.
func (r Rule) Check(value string, now time.Time) bool {
	if r.Name != "required" && strings.TrimSpace(value) == "" {
		return true
	}
	return definitions[r.Name].check(strings.TrimSpace(value), r, now)
}

// Message is the text shown next to a field that failed r.
func (r Rule) Message() string {
	return definitions[r.Name].message(r)
}

func parseNumber(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func parseDate(v string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
