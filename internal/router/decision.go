package router

import "strings"

// Route is the path a turn takes.
type Route string

const (
	RouteHistory  Route = "history"
	RouteRetrieve Route = "retrieve"
)

// State is a step of the per-turn routing machine.
type State string

const (
	StateStart               State = "start"
	StateRefining            State = "refining"
	StateAnsweredFromHistory State = "answered_from_history"
	StateAwaitingRetrieval   State = "awaiting_retrieval"
)

// Fallback names why a turn took the default retrieve path.
type Fallback string

const (
	FallbackNone       Fallback = ""
	FallbackGeneration Fallback = "generation"
	FallbackParse      Fallback = "parse"
	FallbackCancelled  Fallback = "cancelled"
)

// Decision is the router's verdict for one turn. Exactly one of Answer
// (RouteHistory) or Query (RouteRetrieve) is meaningful.
type Decision struct {
	Route  Route
	Answer string
	Query  string

	// Fallback is set when the decision is the default rather than the
	// model's choice; Err holds the cause.
	Fallback Fallback
	Err      error

	// Trace lists the states visited, in order.
	Trace []State
	// Raw is the model output, if any.
	Raw string
}

// IsHistory reports whether the turn is answered from history.
func (d Decision) IsHistory() bool {
	return d.Route == RouteHistory
}

// TraceString renders the state trace as "start>refining>...".
func (d Decision) TraceString() string {
	parts := make([]string, len(d.Trace))
	for i, s := range d.Trace {
		parts[i] = string(s)
	}
	return strings.Join(parts, ">")
}
