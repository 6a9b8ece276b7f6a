// Package finance looks up company fundamentals from Yahoo Finance.
package finance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/ghosthunter/internal/querytool"
)

const (
	DefaultBaseURL = "https://query2.finance.yahoo.com"
	// DefaultCookieURL hands out the session cookie the crumb is bound to.
	DefaultCookieURL = "https://fc.yahoo.com"
	providerName   = "yahoo"
	quoteURL       = "https://finance.yahoo.com/quote/"
	modules        = "price,financialData,assetProfile,summaryDetail"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxErrorBody   = 512
)

// Yahoo reads the quoteSummary endpoint. Requests carry a session cookie and
// the crumb issued for it; both are fetched on first use and renewed once
// when Yahoo rejects them.
type Yahoo struct {
	baseURL   string
	cookieURL string
	client    *http.Client
	log       *slog.Logger

	mu    sync.Mutex
	crumb string
}

// Option configures a Yahoo provider.
type Option func(*Yahoo)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithCookieURL overrides the host that sets the session cookie.
func WithCookieURL(u string) Option {
	return func(y *Yahoo) { y.cookieURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) { y.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(y *Yahoo) { y.log = l }
}

func NewYahoo(opts ...Option) *Yahoo {
	y := &Yahoo{
		baseURL:   DefaultBaseURL,
		cookieURL: DefaultCookieURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(y)
	}
	if y.client.Jar == nil {
		c := *y.client
		c.Jar, _ = cookiejar.New(nil)
		y.client = &c
	}
	y.log = y.log.With("component", "finance")
	return y
}

// Fundamentals fetches market cap, debt, cash and the business profile for
// ticker. Fields Yahoo does not report are left nil or empty.
func (y *Yahoo) Fundamentals(ctx context.Context, ticker string) (querytool.Fundamentals, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return querytool.Fundamentals{}, &querytool.InputError{Message: "ticker is empty"}
	}

	var (
		status int
		body   []byte
	)
	for attempt := 0; attempt < 2; attempt++ {
		crumb, err := y.sessionCrumb(ctx, attempt > 0)
		if err != nil {
			return querytool.Fundamentals{}, err
		}
		status, body, err = y.quoteSummary(ctx, ticker, crumb)
		if err != nil {
			return querytool.Fundamentals{}, err
		}
		if status != http.StatusUnauthorized {
			break
		}
		y.log.Debug("crumb rejected", "ticker", ticker, "attempt", attempt+1)
	}

	if status == http.StatusNotFound {
		// Unknown symbols come back as 404 with an error description.
		if desc := gjson.GetBytes(body, "quoteSummary.error.description").String(); desc != "" {
			return querytool.Fundamentals{}, &querytool.InputError{Message: fmt.Sprintf("%s: %s", ticker, desc)}
		}
	}
	if status != http.StatusOK {
		return querytool.Fundamentals{}, &querytool.StatusError{
			Provider:   providerName,
			StatusCode: status,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}

	f, err := parseQuoteSummary(body, ticker)
	if err != nil {
		return querytool.Fundamentals{}, err
	}
	y.log.Debug("fetched fundamentals", "ticker", ticker, "has_market_cap", f.MarketCap != nil)
	return f, nil
}

func (y *Yahoo) quoteSummary(ctx context.Context, ticker, crumb string) (int, []byte, error) {
	q := url.Values{}
	q.Set("modules", modules)
	q.Set("crumb", crumb)
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", y.baseURL, url.PathEscape(ticker), q.Encode())
	return y.get(ctx, endpoint, "application/json")
}

// sessionCrumb returns the cached crumb, or primes the session cookie and
// fetches a new one when none is cached or refresh is set.
func (y *Yahoo) sessionCrumb(ctx context.Context, refresh bool) (string, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.crumb != "" && !refresh {
		return y.crumb, nil
	}
	y.crumb = ""

	// fc.yahoo.com answers 404 but still sets the cookie.
	if _, _, err := y.get(ctx, y.cookieURL, "*/*"); err != nil {
		return "", err
	}
	status, body, err := y.get(ctx, y.baseURL+"/v1/test/getcrumb", "text/plain")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &querytool.StatusError{
			Provider:   providerName,
			StatusCode: status,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
	}
	crumb := strings.TrimSpace(string(body))
	if crumb == "" || strings.ContainsAny(crumb, "<{ ") {
		return "", &querytool.ProtocolError{Provider: providerName, Detail: "unexpected crumb response"}
	}
	y.crumb = crumb
	return crumb, nil
}

func (y *Yahoo) get(ctx context.Context, endpoint, accept string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := y.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read yahoo response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func parseQuoteSummary(body []byte, ticker string) (querytool.Fundamentals, error) {
	if !gjson.ValidBytes(body) {
		return querytool.Fundamentals{}, &querytool.ProtocolError{Provider: providerName, Detail: "response is not JSON"}
	}
	if desc := gjson.GetBytes(body, "quoteSummary.error.description").String(); desc != "" {
		return querytool.Fundamentals{}, fmt.Errorf("yahoo quoteSummary error: %s", desc)
	}
	root := gjson.GetBytes(body, "quoteSummary.result.0")
	if !root.Exists() || !root.IsObject() {
		return querytool.Fundamentals{}, &querytool.ProtocolError{Provider: providerName, Detail: "missing quoteSummary.result"}
	}

	f := querytool.Fundamentals{
		Ticker:    ticker,
		Name:      firstString(root, "price.longName", "price.shortName"),
		MarketCap: firstNumber(root, "price.marketCap.raw", "summaryDetail.marketCap.raw"),
		TotalDebt: firstNumber(root, "financialData.totalDebt.raw"),
		TotalCash: firstNumber(root, "financialData.totalCash.raw"),
		Summary:   strings.TrimSpace(root.Get("assetProfile.longBusinessSummary").String()),
		Industry:  root.Get("assetProfile.industry").String(),
		Sector:    root.Get("assetProfile.sector").String(),
		SourceURL: quoteURL + url.PathEscape(ticker),
	}
	if f.Name == "" {
		f.Name = ticker
	}
	return f, nil
}

func firstNumber(root gjson.Result, paths ...string) *float64 {
	for _, p := range paths {
		v := root.Get(p)
		if v.Exists() && v.Type == gjson.Number {
			n := v.Float()
			return &n
		}
	}
	return nil
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(root.Get(p).String()); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
