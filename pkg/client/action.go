package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingAttribute is returned when a delete control lacks its target id.
var ErrMissingAttribute = errors.New("missing required attribute")

// Data attributes read from a delete control.
const (
	AttrID   = "data-id"
	AttrType = "data-type"
	AttrName = "data-name"
	AttrURL  = "data-url"
)

// DeleteAction is the typed description of a delete control.
type DeleteAction struct {
	ID   string
	Type string
	Name string
	URL  string
}

// Key identifies the action for in-flight tracking.
func (a DeleteAction) Key() string {
	return "delete:" + a.Type + ":" + a.ID
}

// ParseDeleteAction builds a DeleteAction from explicit data attributes.
// data-id is required; data-url, when present, is used as is, otherwise
// data-type is required and the URL is /delete_<type>/<id> under base.
func ParseDeleteAction(base string, attrs map[string]string) (DeleteAction, error) {
	action := DeleteAction{
		ID:   strings.TrimSpace(attrs[AttrID]),
		Type: strings.TrimSpace(attrs[AttrType]),
		Name: strings.TrimSpace(attrs[AttrName]),
		URL:  strings.TrimSpace(attrs[AttrURL]),
	}

	if action.ID == "" {
		return DeleteAction{}, fmt.Errorf("%w: %s", ErrMissingAttribute, AttrID)
	}
	if action.Name == "" {
		action.Name = "item"
	}
	if action.URL != "" {
		return action, nil
	}
	if action.Type == "" {
		return DeleteAction{}, fmt.Errorf("%w: %s (required without %s)", ErrMissingAttribute, AttrType, AttrURL)
	}

	action.URL = strings.TrimRight(base, "/") + "/delete_" + url.PathEscape(action.Type) + "/" + url.PathEscape(action.ID)
	return action, nil
}
