package querytool

import (
	"context"
	"strings"
)

const SearchToolName = "ghost_hunter_search"

// SearchSettings are the provider parameters applied to every query.
type SearchSettings struct {
	Region     string
	SafeSearch SafeSearch
	MaxResults int
}

// SearchTool runs web searches for company addresses, news, directors and
// regulatory actions.
type SearchTool struct {
	provider SearchProvider
	settings SearchSettings
	retry    retrier
}

// NewSearchTool builds a search tool over provider.
func NewSearchTool(provider SearchProvider, settings SearchSettings, opts ...Option) *SearchTool {
	if settings.MaxResults <= 0 {
		settings.MaxResults = 10
	}
	if settings.SafeSearch == "" {
		settings.SafeSearch = SafeSearchModerate
	}
	return &SearchTool{
		provider: provider,
		settings: settings,
		retry:    newRetrier(SearchToolName, opts),
	}
}

func (t *SearchTool) Name() string { return SearchToolName }

func (t *SearchTool) Description() string {
	return "Search the web for company addresses, news, directors, and regulatory actions. " +
		"Useful for finding red flags, adverse media, and ghost office indicators. " +
		"Returns relevant search results that can be analyzed for compliance risks."
}

func (t *SearchTool) Param() Param {
	return Param{Name: "query", Description: "Search query string"}
}

// InvokeTyped searches for req.Input. An empty reply is returned as Empty
// without retrying.
func (t *SearchTool) InvokeTyped(ctx context.Context, req Request) Result {
	query := strings.TrimSpace(req.Input)
	if query == "" {
		return Failed(FaultInvalidInput, "query is empty", 0)
	}
	params := SearchParams{
		Query:      query,
		Region:     t.settings.Region,
		SafeSearch: t.settings.SafeSearch,
		MaxResults: t.settings.MaxResults,
	}
	return t.retry.run(ctx, query, func(ctx context.Context) (Result, error) {
		items, err := t.provider.Search(ctx, params)
		if err != nil {
			return Result{}, err
		}
		if len(items) == 0 {
			t.retry.log.Warn("no results found", "query", query)
			return Empty(0), nil
		}
		if len(items) > params.MaxResults {
			items = items[:params.MaxResults]
		}
		t.retry.log.Debug("search returned results", "query", query, "count", len(items))
		return Success(items, 0), nil
	})
}

func (t *SearchTool) Render(_ Request, res Result) string {
	switch res.Kind {
	case KindSuccess:
		return RenderItems(res.Items)
	case KindEmpty:
		return noResultsText
	default:
		return RenderFailure("Search", res.Failure)
	}
}
