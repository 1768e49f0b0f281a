package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/pagefeed/internal/testutil"
	"github.com/Sternrassler/pagefeed/pkg/validation"
)

func TestSubmitForm_Post(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()

	type captured struct{ body, contentType, method string }
	seen := make(chan captured, 1)
	mock.SetHandler("/save", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- captured{string(body), r.Header.Get("Content-Type"), r.Method}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "message": "saved"}`))
	})

	exec := newTestExecutor(t, nil)
	values := url.Values{"name": {"widget"}, "qty": {"3"}}

	env, err := exec.SubmitForm(context.Background(), "edit-form", "", mock.URL()+"/save", values)
	if err != nil {
		t.Fatalf("SubmitForm() error = %v", err)
	}
	if env.Message != "saved" {
		t.Errorf("Message = %q, want saved", env.Message)
	}
	got := <-seen
	gotBody, gotType, gotMethod := got.body, got.contentType, got.method
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != values.Encode() {
		t.Errorf("body = %q, want %q", gotBody, values.Encode())
	}
}

func TestSubmitForm_Get(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()
	mock.SetResponse("/search", testutil.JSON(`{"success": true}`))

	exec := newTestExecutor(t, nil)
	_, err := exec.SubmitForm(context.Background(), "", "get", mock.URL()+"/search?sort=name", url.Values{"q": {"abc"}})
	if err != nil {
		t.Fatalf("SubmitForm() error = %v", err)
	}

	req := mock.LastRequest()
	if req.Method != http.MethodGet {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if req.URL.Query().Get("q") != "abc" || req.URL.Query().Get("sort") != "name" {
		t.Errorf("query = %s", req.URL.RawQuery)
	}
}

func TestSubmitForm_DuplicateInFlight(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	mock.SetHandler("/save", func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true}`))
	})

	exec := newTestExecutor(t, nil)

	done := make(chan error, 1)
	go func() {
		_, err := exec.SubmitForm(context.Background(), "edit-form", http.MethodPost, mock.URL()+"/save", nil)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the server")
	}

	_, err := exec.SubmitForm(context.Background(), "edit-form", http.MethodPost, mock.URL()+"/save", nil)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("second submit error = %v, want ErrInFlight", err)
	}

	// a different form is not blocked
	if exec.guard.Busy("other-form") {
		t.Error("other-form should not be busy")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit error = %v", err)
	}
	if exec.guard.Busy("edit-form") {
		t.Error("guard not released after completion")
	}
	if got := mock.PathCount("/save"); got != 1 {
		t.Errorf("server saw %d submits, want 1", got)
	}
}

func TestSubmitForm_ServerFailure(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()
	mock.SetResponse("/save", testutil.JSON(`{"success": false, "message": "name already taken"}`))

	exec := newTestExecutor(t, nil)
	env, err := exec.SubmitForm(context.Background(), "f", http.MethodPost, mock.URL()+"/save", url.Values{"name": {"x"}})

	var envErr *EnvelopeError
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want *EnvelopeError", err)
	}
	if envErr.Message != "name already taken" {
		t.Errorf("Message = %q", envErr.Message)
	}
	if env == nil || env.Success {
		t.Errorf("expected the failed envelope to be returned, got %+v", env)
	}
	// a logical failure is not retried
	if got := mock.PathCount("/save"); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestPostJSON(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()

	type captured struct {
		contentType string
		payload     map[string]any
	}
	seen := make(chan captured, 1)
	mock.SetHandler("/api/items", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		seen <- captured{r.Header.Get("Content-Type"), payload}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "data": [{"id": 7}]}`))
	})

	exec := newTestExecutor(t, nil)
	env, err := exec.PostJSON(context.Background(), mock.URL()+"/api/items", map[string]any{"name": "bolt"})
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	c := <-seen
	gotType, got := c.contentType, c.payload
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if got["name"] != "bolt" {
		t.Errorf("payload = %v", got)
	}
	if len(env.Data) != 1 {
		t.Errorf("Data = %v", env.Data)
	}
}

func TestPostJSON_UnmarshalablePayload(t *testing.T) {
	exec := newTestExecutor(t, nil)
	_, err := exec.PostJSON(context.Background(), "http://127.0.0.1:1/x", map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestDelete(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()
	mock.SetResponse("/delete_customer/42", testutil.JSON(`{"success": true, "message": "deleted"}`))

	exec := newTestExecutor(t, nil)
	action, err := ParseDeleteAction(mock.URL(), map[string]string{
		AttrID:   "42",
		AttrType: "customer",
		AttrName: "ACME",
	})
	if err != nil {
		t.Fatalf("ParseDeleteAction() error = %v", err)
	}

	env, err := exec.Delete(context.Background(), action)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if env.Message != "deleted" {
		t.Errorf("Message = %q", env.Message)
	}
	if req := mock.LastRequest(); req.Method != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", req.Method)
	}
}

func TestAppendQuery(t *testing.T) {
	tests := []struct {
		url    string
		values url.Values
		want   string
	}{
		{"/s", nil, "/s"},
		{"/s", url.Values{"q": {"a"}}, "/s?q=a"},
		{"/s?x=1", url.Values{"q": {"a"}}, "/s?x=1&q=a"},
	}

	for _, tt := range tests {
		if got := appendQuery(tt.url, tt.values); got != tt.want {
			t.Errorf("appendQuery(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSubmitValidated(t *testing.T) {
	mock := testutil.NewMockEndpoint()
	defer mock.Close()
	mock.SetResponse("/invoices", testutil.JSON(`{"success": true, "message": "created"}`))

	form, err := validation.NewForm(map[string]string{
		"customer": "required",
		"amount":   "required|number|positive",
	})
	if err != nil {
		t.Fatalf("NewForm() error = %v", err)
	}
	exec := newTestExecutor(t, nil)

	_, err = exec.SubmitValidated(context.Background(), "invoice-form", "", mock.URL()+"/invoices",
		url.Values{"customer": {""}, "amount": {"abc"}}, form)
	var errs validation.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("error = %v, want validation.Errors", err)
	}
	if len(errs.Field("customer")) != 1 || len(errs.Field("amount")) != 1 {
		t.Errorf("field errors = %v", errs)
	}
	if got := mock.PathCount("/invoices"); got != 0 {
		t.Errorf("invalid form reached the server %d times", got)
	}
	if exec.guard.Busy("invoice-form") {
		t.Error("rejected form left its key in flight")
	}

	env, err := exec.SubmitValidated(context.Background(), "invoice-form", "", mock.URL()+"/invoices",
		url.Values{"customer": {"Acme"}, "amount": {"99.90"}}, form)
	if err != nil {
		t.Fatalf("SubmitValidated() error = %v", err)
	}
	if env.Message != "created" {
		t.Errorf("Message = %q, want created", env.Message)
	}
	if got := mock.PathCount("/invoices"); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}

	if _, err := exec.SubmitValidated(context.Background(), "", "", mock.URL()+"/invoices", url.Values{}, nil); err != nil {
		t.Errorf("SubmitValidated() without validator error = %v", err)
	}
}
