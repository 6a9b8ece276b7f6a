package querytool

import (
	"context"
	"fmt"
	"strings"
)

// Param describes the single string argument a tool accepts.
type Param struct {
	Name        string
	Description string
}

// Tool is a capability exposed to the agent runtime. InvokeTyped never
// returns a fault to the caller; Render turns its Result into the text the
// runtime passes to the model.
type Tool interface {
	Name() string
	Description() string
	Param() Param
	InvokeTyped(ctx context.Context, req Request) Result
	Render(req Request, res Result) string
}

// Invoke runs t and renders the outcome.
func Invoke(ctx context.Context, t Tool, req Request) string {
	return t.Render(req, t.InvokeTyped(ctx, req))
}

// SafeSearch is the provider's adult-content filtering level.
type SafeSearch string

const (
	SafeSearchStrict   SafeSearch = "strict"
	SafeSearchModerate SafeSearch = "moderate"
	SafeSearchOff      SafeSearch = "off"
)

// ParseSafeSearch validates a safe-search level, case-insensitively.
func ParseSafeSearch(s string) (SafeSearch, error) {
	switch SafeSearch(strings.ToLower(strings.TrimSpace(s))) {
	case SafeSearchStrict:
		return SafeSearchStrict, nil
	case SafeSearchModerate, "":
		return SafeSearchModerate, nil
	case SafeSearchOff:
		return SafeSearchOff, nil
	default:
		return "", fmt.Errorf("invalid safe-search level %q (want strict, moderate or off)", s)
	}
}

// SearchParams is the full request sent to a SearchProvider.
type SearchParams struct {
	Query      string
	Region     string
	SafeSearch SafeSearch
	MaxResults int
}

// SearchProvider executes a web search.
type SearchProvider interface {
	Search(ctx context.Context, params SearchParams) ([]Item, error)
}

// Fundamentals is the flat record returned by a FinanceProvider. Numeric
// fields are nil when the provider did not report them.
type Fundamentals struct {
	Ticker    string
	Name      string
	MarketCap *float64
	TotalDebt *float64
	TotalCash *float64
	Summary   string
	Industry  string
	Sector    string
	SourceURL string
}

// FinanceProvider looks up company fundamentals by ticker symbol.
type FinanceProvider interface {
	Fundamentals(ctx context.Context, ticker string) (Fundamentals, error)
}
