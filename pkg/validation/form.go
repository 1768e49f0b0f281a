package validation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// FieldError lists the failed rule messages of one field.
type FieldError struct {
	Field    string
	Messages []string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, strings.Join(e.Messages, "; "))
}

// Errors collects the failures of a form, ordered by field name.
type Errors []FieldError

func (errs Errors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("form validation failed with %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

// HasErrors returns true if any field failed.
func (errs Errors) HasErrors() bool {
	return len(errs) > 0
}

// Field returns the messages for name, or nil.
func (errs Errors) Field(name string) []string {
	for _, e := range errs {
		if e.Field == name {
			return e.Messages
		}
	}
	return nil
}

// Form holds the rule lists of a form's fields.
type Form struct {
	fields map[string][]Rule

	// Now is the reference time of futureDate and pastDate (default time.Now).
	Now func() time.Time
}

// NewForm parses the data-rules attribute of every field, keyed by field name.
func NewForm(fieldRules map[string]string) (*Form, error) {
	f := &Form{fields: make(map[string][]Rule, len(fieldRules)), Now: time.Now}
	for name, spec := range fieldRules {
		rules, err := ParseRules(spec)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		f.fields[name] = rules
	}
	return f, nil
}

// Validate checks values and returns Errors when any field fails.
// A field missing from values is validated as empty.
func (f *Form) Validate(values url.Values) error {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}

	names := make([]string, 0, len(f.fields))
	for name := range f.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs Errors
	for _, name := range names {
		value := values.Get(name)
		var msgs []string
		for _, r := range f.fields[name] {
			if !r.Check(value, now) {
				msgs = append(msgs, r.Message())
			}
		}
		if len(msgs) > 0 {
			errs = append(errs, FieldError{Field: name, Messages: msgs})
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
