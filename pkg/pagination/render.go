package pagination

import (
	"errors"
	"strconv"

	"github.com/Sternrassler/pagefeed/pkg/client"
)

// RenderTarget is the surface a Loader appends into: a table body or a card
// container with a trailing sentinel the loader owns. All calls for one
// Loader are serialised and the sentinel must stay the last child.
type RenderTarget interface {
	// Append materialises records before the sentinel.
	Append(records []client.Record) error

	// AppendHTML inserts a pre-rendered fragment before the sentinel.
	AppendHTML(fragment string) error

	// Clear removes every loaded row and keeps the sentinel.
	Clear() error

	// ShowIndicator replaces the sentinel content.
	ShowIndicator(ind Indicator)

	// RemoveSentinel drops the sentinel for good.
	RemoveSentinel()
}

// IndicatorKind selects what the sentinel shows.
type IndicatorKind int

const (
	IndicatorLoading IndicatorKind = iota
	IndicatorNoMore
	IndicatorError
)

// Indicator is the sentinel content.
type Indicator struct {
	Kind IndicatorKind
	Text string

	// RetryLabel is set for IndicatorError; the target offers a retry
	// control wired to Loader.Retry.
	RetryLabel string
}

// Messages holds the user-visible texts. Empty fields take the defaults.
type Messages struct {
	Loading    string
	NoMore     string
	ErrorText  string
	LoadFailed string
	Retry      string
}

// DefaultMessages returns the built-in texts.
func DefaultMessages() Messages {
	return Messages{
		Loading:    "Loading...",
		NoMore:     "No more data",
		ErrorText:  "Failed to load",
		LoadFailed: "Could not load data",
		Retry:      "Retry",
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Loading == "" {
		m.Loading = d.Loading
	}
	if m.NoMore == "" {
		m.NoMore = d.NoMore
	}
	if m.ErrorText == "" {
		m.ErrorText = d.ErrorText
	}
	if m.LoadFailed == "" {
		m.LoadFailed = d.LoadFailed
	}
	if m.Retry == "" {
		m.Retry = d.Retry
	}
	return m
}

// errorText renders "<ErrorText>: <cause>", using LoadFailed when err
// carries no usable cause.
func (m Messages) errorText(err error) string {
	cause := causeText(err)
	if cause == "" {
		cause = m.LoadFailed
	}
	return m.ErrorText + ": " + cause
}

func causeText(err error) string {
	if err == nil {
		return ""
	}

	var envErr *client.EnvelopeError
	if errors.As(err, &envErr) {
		return envErr.Message
	}

	var reqErr *client.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Kind {
		case client.FailureHTTP:
			return "HTTP error " + strconv.Itoa(reqErr.StatusCode)
		case client.FailureTimeout:
			return client.ErrTimeout.Error()
		case client.FailureNetwork:
			return client.ErrNetwork.Error()
		case client.FailureAborted:
			return client.ErrAborted.Error()
		case client.FailureProtocol:
			return client.ErrProtocol.Error()
		}
	}

	return err.Error()
}
