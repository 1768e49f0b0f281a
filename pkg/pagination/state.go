package pagination

import "errors"

// Errors returned when a load is requested in a state that does not allow it.
var (
	// ErrBusy is returned while a page fetch is outstanding.
	ErrBusy = errors.New("page fetch already in flight")

	// ErrExhausted is returned once the endpoint reported no more data.
	ErrExhausted = errors.New("no more pages")

	// ErrNeedsRetry is returned by LoadNextPage after a failed page; use Retry.
	ErrNeedsRetry = errors.New("last page failed, retry required")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("loader destroyed")

	// ErrStale is returned when a page arrived after Reset or Destroy and was dropped.
	ErrStale = errors.New("stale page discarded")
)

// State is the loader lifecycle state.
type State int

const (
	// StateIdle waits for the trigger; more pages are available.
	StateIdle State = iota

	// StateFetching has exactly one page request outstanding.
	StateFetching

	// StateExhausted is terminal for the current page cursor.
	StateExhausted

	// StateErrorDisplayed shows an inline error until Retry is called.
	StateErrorDisplayed

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExhausted:
		return "exhausted"
	case StateErrorDisplayed:
		return "error"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the pagination state.
type Snapshot struct {
	State       State
	CurrentPage int
	IsLoading   bool
	HasMore     bool
	TotalLoaded int

	// LastError is the failure shown while State is StateErrorDisplayed.
	LastError error
}
