package querytool

import (
	"context"
	"fmt"
	"strings"
)

const BusinessToolName = "business_activity_lookup"

// BusinessTool returns a listed company's own business description together
// with its industry and sector. It does not judge the activities itself.
type BusinessTool struct {
	provider FinanceProvider
	retry    retrier
}

// NewBusinessTool builds a business activity tool over provider.
func NewBusinessTool(provider FinanceProvider, opts ...Option) *BusinessTool {
	return &BusinessTool{provider: provider, retry: newRetrier(BusinessToolName, opts)}
}

func (t *BusinessTool) Name() string { return BusinessToolName }

func (t *BusinessTool) Description() string {
	return "Look up a listed company's business summary, industry and sector. " +
		"Use it to judge whether the company's core activities are permissible. Input is a stock ticker symbol."
}

func (t *BusinessTool) Param() Param {
	return Param{Name: "ticker", Description: "Stock ticker symbol, e.g. AAPL"}
}

func (t *BusinessTool) InvokeTyped(ctx context.Context, req Request) Result {
	ticker := strings.ToUpper(strings.TrimSpace(req.Input))
	if ticker == "" {
		return Failed(FaultInvalidInput, "ticker is empty", 0)
	}
	return t.retry.run(ctx, ticker, func(ctx context.Context) (Result, error) {
		f, err := t.provider.Fundamentals(ctx, ticker)
		if err != nil {
			return Result{}, err
		}
		summary := strings.TrimSpace(f.Summary)
		if summary == "" {
			return Failed(FaultInvalidInput, "business summary unavailable", 0), nil
		}
		return Success([]Item{{
			Title:       businessTitle(ticker, f),
			Description: summary,
			SourceURL:   f.SourceURL,
		}}, 0), nil
	})
}

func (t *BusinessTool) Render(req Request, res Result) string {
	ticker := strings.ToUpper(strings.TrimSpace(req.Input))
	switch res.Kind {
	case KindSuccess:
		return fmt.Sprintf("Business profile for %s:\n\n%s", ticker, RenderItems(res.Items))
	case KindEmpty:
		return fmt.Sprintf("No business profile found for ticker %s.", ticker)
	default:
		return RenderFailure("Business data", res.Failure)
	}
}

func businessTitle(ticker string, f Fundamentals) string {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = ticker
	}
	parts := []string{fmt.Sprintf("%s (%s)", name, ticker)}
	if f.Sector != "" {
		parts = append(parts, "Sector: "+f.Sector)
	}
	if f.Industry != "" {
		parts = append(parts, "Industry: "+f.Industry)
	}
	return strings.Join(parts, " | ")
}
