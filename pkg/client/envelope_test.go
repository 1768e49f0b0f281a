package client

import (
	"errors"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	body := []byte(`{
		"success": true,
		"message": "ok",
		"data": [{"id": 1, "name": "a"}, {"id": 2, "name": "b"}],
		"has_more": false,
		"html": "<tr><td>a</td></tr>",
		"pagination": {"page": 2, "pages": 5, "total": 93, "has_next": true, "has_prev": true}
	}`)

	env, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}

	if !env.Success || env.Message != "ok" {
		t.Errorf("Success/Message = %v/%q", env.Success, env.Message)
	}
	if !env.DataSet || len(env.Data) != 2 {
		t.Fatalf("Data = %v (set=%v), want 2 records", env.Data, env.DataSet)
	}
	if env.Data[1]["name"] != "b" {
		t.Errorf("Data[1][name] = %v, want b", env.Data[1]["name"])
	}
	if !env.HasMoreSet || env.HasMore {
		t.Errorf("HasMore = %v (set=%v), want explicit false", env.HasMore, env.HasMoreSet)
	}
	if env.HTML != "<tr><td>a</td></tr>" {
		t.Errorf("HTML = %q", env.HTML)
	}

	want := PageInfo{Page: 2, Pages: 5, Total: 93, HasNext: true, HasPrev: true}
	if env.Pagination == nil || *env.Pagination != want {
		t.Errorf("Pagination = %+v, want %+v", env.Pagination, want)
	}
	if err := env.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestDecodeEnvelope_OptionalFields(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"success": true}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.DataSet || env.HasMoreSet || env.Pagination != nil {
		t.Errorf("expected no optional fields, got %+v", env)
	}

	env, err = DecodeEnvelope([]byte(`{"success": true, "data": null}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope(null data) error = %v", err)
	}
	if env.DataSet {
		t.Error("null data must not count as a data array")
	}

	env, err = DecodeEnvelope([]byte(`{"success": true, "data": []}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope(empty data) error = %v", err)
	}
	if !env.DataSet || len(env.Data) != 0 {
		t.Errorf("empty data array: set=%v len=%d", env.DataSet, len(env.Data))
	}
}

func TestDecodeEnvelope_Failure(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"success": false, "message": "database unavailable"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}

	var envErr *EnvelopeError
	if !errors.As(env.Err(), &envErr) {
		t.Fatalf("Err() = %v, want *EnvelopeError", env.Err())
	}
	if envErr.Message != "database unavailable" {
		t.Errorf("Message = %q", envErr.Message)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"array", `[1, 2]`},
		{"no success", `{"data": []}`},
		{"success not bool", `{"success": "yes"}`},
		{"data not array", `{"success": true, "data": {"id": 1}}`},
		{"data element not object", `{"success": true, "data": [1, 2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.body))
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("DecodeEnvelope(%s) error = %v, want ErrProtocol", tt.body, err)
			}
		})
	}
}

func TestResult_Envelope_TextBody(t *testing.T) {
	res := &Result{Kind: BodyText, Body: []byte(`{"success": true}`)}
	if _, err := res.Envelope(); !errors.Is(err, ErrProtocol) {
		t.Errorf("Envelope() on text body error = %v, want ErrProtocol", err)
	}
}
