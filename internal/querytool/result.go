// Package querytool wraps unreliable external data sources (web search, stock
// data) behind a uniform tool contract consumed by the agent runtime.
//
// Every tool exposes InvokeTyped, which always returns exactly one Result, and
// Invoke, which renders that Result into the text the runtime hands to the
// model. Provider faults never escape a tool: they are classified, retried
// according to the tool's RetryPolicy and finally reported as a Failure.
package querytool

import (
	"fmt"
	"strings"
)

// Request is the opaque input of a tool invocation: a free-text query for the
// search tool or a ticker symbol for the financial tools.
type Request struct {
	Input string
}

// Item is a single entry of a successful lookup.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url"`
}

// Metric is one named value of a Measurement.
type Metric struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Measurement is the flat name -> value payload produced by ratio-style tools.
// Order is fixed by the producing tool so rendering is deterministic.
type Measurement []Metric

// Get returns the value recorded under name.
func (m Measurement) Get(name string) (string, bool) {
	for _, metric := range m {
		if metric.Name == name {
			return metric.Value, true
		}
	}
	return "", false
}

// Kind discriminates the three possible outcomes of an invocation.
type Kind int

const (
	KindSuccess Kind = iota
	KindEmpty
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindFailure:
		return "failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure describes why an invocation gave up.
type Failure struct {
	Kind     FaultKind
	Message  string
	Attempts int
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s after %d attempt(s): %s", f.Kind, f.Attempts, f.Message)
}

// Result is the typed outcome of a tool invocation. Exactly one of Items,
// Measurement or Failure is meaningful, selected by Kind.
type Result struct {
	Kind        Kind
	Items       []Item
	Measurement Measurement
	Failure     *Failure
	Attempts    int
}

// Success builds a result carrying items.
func Success(items []Item, attempts int) Result {
	return Result{Kind: KindSuccess, Items: items, Attempts: attempts}
}

// Measured builds a successful result carrying a measurement.
func Measured(m Measurement, attempts int) Result {
	return Result{Kind: KindSuccess, Measurement: m, Attempts: attempts}
}

// Empty builds a result for a lookup that found nothing.
func Empty(attempts int) Result {
	return Result{Kind: KindEmpty, Attempts: attempts}
}

// Failed builds a failure result.
func Failed(kind FaultKind, message string, attempts int) Result {
	return Result{
		Kind:     KindFailure,
		Failure:  &Failure{Kind: kind, Message: message, Attempts: attempts},
		Attempts: attempts,
	}
}

// Err returns the Failure as an error, or nil for non-failure results.
func (r Result) Err() error {
	if r.Kind != KindFailure || r.Failure == nil {
		return nil
	}
	return r.Failure
}

// OK reports whether the invocation produced data.
func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

func (r Result) String() string {
	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	switch r.Kind {
	case KindSuccess:
		if r.Measurement != nil {
			fmt.Fprintf(&sb, " (%d metrics)", len(r.Measurement))
		} else {
			fmt.Fprintf(&sb, " (%d items)", len(r.Items))
		}
	case KindFailure:
		if r.Failure != nil {
			fmt.Fprintf(&sb, " (%s)", r.Failure.Kind)
		}
	}
	return sb.String()
}
