package querytool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	RatioToolName = "shariah_ratio_check"

	// AAOIFIThreshold is the percentage of market capitalization that debt and
	// cash must each stay strictly below.
	AAOIFIThreshold = 33.0
)

// Metric names of the ratio tool's Measurement.
const (
	MetricMarketCap   = "Market Cap"
	MetricTotalDebt   = "Total Debt"
	MetricTotalCash   = "Total Cash"
	MetricDebtRatio   = "Debt Ratio"
	MetricCashRatio   = "Cash Ratio"
	MetricDebtStatus  = "Debt Ratio Status"
	MetricCashStatus  = "Cash Ratio Status"
	MetricOverall     = "Overall Status"
	MetricThreshold   = "Threshold"
	statusPass        = "PASS"
	statusFail        = "FAIL"
	thresholdDescText = "< 33% of market capitalization (AAOIFI)"
)

// RatioCheck is the outcome of the AAOIFI debt and cash screening.
type RatioCheck struct {
	MarketCap float64
	TotalDebt float64
	TotalCash float64
	DebtRatio float64
	CashRatio float64
	DebtPass  bool
	CashPass  bool
	Pass      bool
}

// EvaluateRatios screens debt and cash against market cap. marketCap must be
// positive.
func EvaluateRatios(marketCap, totalDebt, totalCash float64) RatioCheck {
	c := RatioCheck{
		MarketCap: marketCap,
		TotalDebt: totalDebt,
		TotalCash: totalCash,
		DebtRatio: totalDebt / marketCap * 100,
		CashRatio: totalCash / marketCap * 100,
	}
	c.DebtPass = c.DebtRatio < AAOIFIThreshold
	c.CashPass = c.CashRatio < AAOIFIThreshold
	c.Pass = c.DebtPass && c.CashPass
	return c
}

// Measurement flattens the check into named values.
func (c RatioCheck) Measurement() Measurement {
	return Measurement{
		{Name: MetricMarketCap, Value: fmt.Sprintf("%.0f", c.MarketCap)},
		{Name: MetricTotalDebt, Value: fmt.Sprintf("%.0f", c.TotalDebt)},
		{Name: MetricTotalCash, Value: fmt.Sprintf("%.0f", c.TotalCash)},
		{Name: MetricDebtRatio, Value: formatRatio(c.DebtRatio, c.DebtPass)},
		{Name: MetricCashRatio, Value: formatRatio(c.CashRatio, c.CashPass)},
		{Name: MetricDebtStatus, Value: status(c.DebtPass)},
		{Name: MetricCashStatus, Value: status(c.CashPass)},
		{Name: MetricOverall, Value: status(c.Pass)},
		{Name: MetricThreshold, Value: thresholdDescText},
	}
}

// formatRatio prints r with two decimals, adding digits when rounding would
// put the printed value on the other side of the threshold from pass.
func formatRatio(r float64, pass bool) string {
	for prec := 2; prec <= 10; prec++ {
		s := strconv.FormatFloat(r, 'f', prec, 64)
		if v, err := strconv.ParseFloat(s, 64); err == nil && (v < AAOIFIThreshold) == pass {
			return s + "%"
		}
	}
	return strconv.FormatFloat(r, 'f', -1, 64) + "%"
}

func status(pass bool) string {
	if pass {
		return statusPass
	}
	return statusFail
}

// RatioTool screens a listed company's debt and cash ratios.
type RatioTool struct {
	provider FinanceProvider
	retry    retrier
}

// NewRatioTool builds a ratio tool over provider.
func NewRatioTool(provider FinanceProvider, opts ...Option) *RatioTool {
	return &RatioTool{provider: provider, retry: newRetrier(RatioToolName, opts)}
}

func (t *RatioTool) Name() string { return RatioToolName }

func (t *RatioTool) Description() string {
	return "Check a listed company's debt and cash ratios against the AAOIFI Shariah threshold " +
		"(each must be below 33% of market capitalization). Input is a stock ticker symbol."
}

func (t *RatioTool) Param() Param {
	return Param{Name: "ticker", Description: "Stock ticker symbol, e.g. AAPL"}
}

// InvokeTyped fetches fundamentals for the ticker and evaluates the ratios. A
// missing or zero market cap fails immediately as InvalidInput.
func (t *RatioTool) InvokeTyped(ctx context.Context, req Request) Result {
	ticker := strings.ToUpper(strings.TrimSpace(req.Input))
	if ticker == "" {
		return Failed(FaultInvalidInput, "ticker is empty", 0)
	}
	return t.retry.run(ctx, ticker, func(ctx context.Context) (Result, error) {
		f, err := t.provider.Fundamentals(ctx, ticker)
		if err != nil {
			return Result{}, err
		}
		if f.MarketCap == nil || *f.MarketCap <= 0 {
			return Failed(FaultInvalidInput, "market cap unavailable", 0), nil
		}
		check := EvaluateRatios(*f.MarketCap, valueOrZero(f.TotalDebt), valueOrZero(f.TotalCash))
		t.retry.log.Debug("ratios evaluated", "ticker", ticker,
			"debt_ratio", check.DebtRatio, "cash_ratio", check.CashRatio, "pass", check.Pass)
		return Measured(check.Measurement(), 0), nil
	})
}

func (t *RatioTool) Render(req Request, res Result) string {
	ticker := strings.ToUpper(strings.TrimSpace(req.Input))
	if res.Kind == KindSuccess {
		return RenderMeasurement(fmt.Sprintf("AAOIFI financial screening for %s:", ticker), res.Measurement)
	}
	return RenderFailure("Financial data", res.Failure)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
