package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SubmitForm sends values to action the way an AJAX-enabled form does and
// decodes the envelope. key identifies the form; a second submit for the
// same key while the first is outstanding fails with ErrInFlight.
func (e *Executor) SubmitForm(ctx context.Context, key, method, action string, values url.Values) (*Envelope, error) {
	if method == "" {
		method = http.MethodPost
	}
	method = strings.ToUpper(method)

	d := e.NewDescriptor(method, action)
	if method == http.MethodGet {
		d.URL = appendQuery(action, values)
	} else {
		d = d.WithBody([]byte(values.Encode()), "application/x-www-form-urlencoded")
	}

	return e.guarded(ctx, key, d)
}

// FormValidator checks form values before they are sent.
// *validation.Form implements it.
type FormValidator interface {
	Validate(values url.Values) error
}

// SubmitValidated runs v over values and submits the form only when it
// passes. A failed check is returned as is and nothing is sent.
func (e *Executor) SubmitValidated(ctx context.Context, key, method, action string, values url.Values, v FormValidator) (*Envelope, error) {
	if v != nil {
		if err := v.Validate(values); err != nil {
			e.logger.Debug().Str("key", key).Err(err).Msg("Form rejected before submit")
			return nil, err
		}
	}
	return e.SubmitForm(ctx, key, method, action, values)
}

// PostJSON posts payload as JSON and decodes the envelope.
func (e *Executor) PostJSON(ctx context.Context, rawURL string, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	d := e.NewDescriptor(http.MethodPost, rawURL).WithBody(body, "application/json")
	return e.envelope(ctx, d)
}

// Delete issues the DELETE described by action. Repeated clicks on the same
// target while the first delete is outstanding fail with ErrInFlight.
func (e *Executor) Delete(ctx context.Context, action DeleteAction) (*Envelope, error) {
	d := e.NewDescriptor(http.MethodDelete, action.URL)
	return e.guarded(ctx, action.Key(), d)
}

func (e *Executor) guarded(ctx context.Context, key string, d Descriptor) (*Envelope, error) {
	if key != "" {
		if !e.guard.TryAcquire(key) {
			e.logger.Debug().Str("key", key).Msg("Dropping duplicate submit")
			return nil, fmt.Errorf("%w: %s", ErrInFlight, key)
		}
		defer e.guard.Release(key)
	}
	return e.envelope(ctx, d)
}

func (e *Executor) envelope(ctx context.Context, d Descriptor) (*Envelope, error) {
	res, err := e.Execute(ctx, d)
	if err != nil {
		return nil, err
	}
	env, err := res.Envelope()
	if err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return env, err
	}
	return env, nil
}

func appendQuery(rawURL string, values url.Values) string {
	if len(values) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + values.Encode()
}
