package client

import (
	"encoding/json"
	"fmt"

	"github.com/Jeffail/gabs/v2"
)

// Record is one row or card of a page payload.
type Record map[string]any

// PageInfo is the optional "pagination" object some endpoints attach to
// fragment responses.
type PageInfo struct {
	Page    int
	Pages   int
	Total   int
	HasNext bool
	HasPrev bool
}

// Envelope is the uniform JSON wrapper every endpoint answers with.
type Envelope struct {
	Success bool
	Message string
	Data    []Record

	// DataSet is true when the server sent a "data" array (possibly empty).
	DataSet bool

	HasMore bool

	// HasMoreSet is true when the server sent "has_more" explicitly.
	HasMoreSet bool

	HTML       string
	Pagination *PageInfo
}

// DecodeEnvelope parses and validates an envelope. A missing or non-boolean
// "success" field, or a "data" field that is not an array of objects, is
// reported as ErrProtocol.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	container, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse envelope: %v", ErrProtocol, err)
	}
	if _, ok := container.Data().(map[string]any); !ok {
		return nil, fmt.Errorf("%w: envelope is not a JSON object", ErrProtocol)
	}

	env := &Envelope{}

	if !container.Exists("success") {
		return nil, fmt.Errorf("%w: envelope has no success field", ErrProtocol)
	}
	success, ok := container.S("success").Data().(bool)
	if !ok {
		return nil, fmt.Errorf("%w: success field is %T, want bool", ErrProtocol, container.S("success").Data())
	}
	env.Success = success

	if msg, ok := container.S("message").Data().(string); ok {
		env.Message = msg
	}
	if html, ok := container.S("html").Data().(string); ok {
		env.HTML = html
	}
	if hasMore, ok := container.S("has_more").Data().(bool); ok {
		env.HasMore = hasMore
		env.HasMoreSet = true
	}

	if container.Exists("data") && container.S("data").Data() != nil {
		items, ok := container.S("data").Data().([]any)
		if !ok {
			return nil, fmt.Errorf("%w: data field is %T, want array", ErrProtocol, container.S("data").Data())
		}
		env.DataSet = true
		env.Data = make([]Record, 0, len(items))
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: data[%d] is %T, want object", ErrProtocol, i, item)
			}
			env.Data = append(env.Data, Record(obj))
		}
	}

	if container.Exists("pagination") {
		p := container.S("pagination")
		env.Pagination = &PageInfo{
			Page:    intValue(p.S("page").Data()),
			Pages:   intValue(p.S("pages").Data()),
			Total:   intValue(p.S("total").Data()),
			HasNext: boolValue(p.S("has_next").Data()),
			HasPrev: boolValue(p.S("has_prev").Data()),
		}
	}

	return env, nil
}

// Err returns an *EnvelopeError when the server reported failure.
func (e *Envelope) Err() error {
	if e.Success {
		return nil
	}
	return &EnvelopeError{Message: e.Message}
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}
