package finance

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/ghosthunter/internal/querytool"
)

const quoteSummaryOK = `{"quoteSummary":{"result":[{
  "price":{"longName":"Widget Corp","shortName":"WIDGET","marketCap":{"raw":1000000,"fmt":"1M"}},
  "financialData":{"totalDebt":{"raw":200000,"fmt":"200k"},"totalCash":{"raw":50000,"fmt":"50k"}},
  "assetProfile":{"longBusinessSummary":" Widget Corp makes widgets. ","industry":"Machinery","sector":"Industrials"},
  "summaryDetail":{"marketCap":{"raw":999}}
}],"error":null}}`

const testCrumb = "abc.DEF/123"

// yahooSession serves the cookie and crumb endpoints and hands every other
// request to quote.
type yahooSession struct {
	crumbs []string
	issued int
}

func (s *yahooSession) handler(quote http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("A3"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		crumb := testCrumb
		if s.issued < len(s.crumbs) {
			crumb = s.crumbs[s.issued]
		}
		s.issued++
		_, _ = io.WriteString(w, crumb)
	})
	mux.HandleFunc("/", quote)
	return mux
}

func newTestYahoo(t *testing.T, h http.HandlerFunc) *Yahoo {
	t.Helper()
	y, _ := newTestYahooSession(t, &yahooSession{}, h)
	return y
}

func newTestYahooSession(t *testing.T, s *yahooSession, h http.HandlerFunc) (*Yahoo, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(s.handler(h))
	t.Cleanup(srv.Close)
	return NewYahoo(WithBaseURL(srv.URL+"/"), WithCookieURL(srv.URL+"/cookie"), WithHTTPClient(srv.Client())), srv
}

func TestFundamentals_Parses(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/WIDG", r.URL.Path)
		assert.Equal(t, modules, r.URL.Query().Get("modules"))
		assert.Equal(t, testCrumb, r.URL.Query().Get("crumb"))
		_, err := r.Cookie("A3")
		assert.NoError(t, err, "session cookie not sent")
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, quoteSummaryOK)
	})

	f, err := y.Fundamentals(context.Background(), " widg ")

	require.NoError(t, err)
	assert.Equal(t, "WIDG", f.Ticker)
	assert.Equal(t, "Widget Corp", f.Name)
	require.NotNil(t, f.MarketCap)
	assert.Equal(t, 1000000.0, *f.MarketCap)
	require.NotNil(t, f.TotalDebt)
	assert.Equal(t, 200000.0, *f.TotalDebt)
	require.NotNil(t, f.TotalCash)
	assert.Equal(t, 50000.0, *f.TotalCash)
	assert.Equal(t, "Widget Corp makes widgets.", f.Summary)
	assert.Equal(t, "Machinery", f.Industry)
	assert.Equal(t, "Industrials", f.Sector)
	assert.Equal(t, "https://finance.yahoo.com/quote/WIDG", f.SourceURL)
}

func TestFundamentals_MissingFieldsAreNil(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"quoteSummary":{"result":[{"summaryDetail":{"marketCap":{"raw":42}},"price":{"shortName":"W"}}],"error":null}}`)
	})

	f, err := y.Fundamentals(context.Background(), "W")

	require.NoError(t, err)
	assert.Equal(t, "W", f.Name)
	require.NotNil(t, f.MarketCap)
	assert.Equal(t, 42.0, *f.MarketCap)
	assert.Nil(t, f.TotalDebt)
	assert.Nil(t, f.TotalCash)
	assert.Empty(t, f.Summary)
}

func TestFundamentals_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   querytool.FaultKind
	}{
		{name: "unknown symbol", status: http.StatusNotFound,
			body: `{"quoteSummary":{"result":null,"error":{"code":"Not Found","description":"Quote not found for ticker symbol: NOPE"}}}`,
			want: querytool.FaultInvalidInput},
		{name: "throttled", status: http.StatusTooManyRequests, body: "Too Many Requests", want: querytool.FaultRateLimited},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: "down", want: querytool.FaultTransientNetwork},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"finance":{"error":{"code":"Unauthorized"}}}`, want: querytool.FaultUnclassified},
		{name: "html page", status: http.StatusOK, body: "<html>consent</html>", want: querytool.FaultProtocolChanged},
		{name: "missing result", status: http.StatusOK, body: `{"quoteSummary":{"result":[],"error":null}}`, want: querytool.FaultProtocolChanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := y.Fundamentals(context.Background(), "NOPE")

			require.Error(t, err)
			assert.Equal(t, tt.want, querytool.Classify(err))
		})
	}
}

func TestFundamentals_CrumbIsCached(t *testing.T) {
	session := &yahooSession{}
	y, _ := newTestYahooSession(t, session, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, quoteSummaryOK)
	})

	for i := 0; i < 3; i++ {
		_, err := y.Fundamentals(context.Background(), "WIDG")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, session.issued)
}

func TestFundamentals_RejectedCrumbIsRefreshedOnce(t *testing.T) {
	session := &yahooSession{crumbs: []string{"stale", "fresh"}}
	var seen []string
	y, _ := newTestYahooSession(t, session, func(w http.ResponseWriter, r *http.Request) {
		crumb := r.URL.Query().Get("crumb")
		seen = append(seen, crumb)
		if crumb != "fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"finance":{"error":{"code":"Unauthorized","description":"Invalid Crumb"}}}`)
			return
		}
		_, _ = io.WriteString(w, quoteSummaryOK)
	})

	f, err := y.Fundamentals(context.Background(), "WIDG")

	require.NoError(t, err)
	assert.Equal(t, "Widget Corp", f.Name)
	assert.Equal(t, []string{"stale", "fresh"}, seen)
	assert.Equal(t, 2, session.issued)
}

func TestFundamentals_CrumbErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   querytool.FaultKind
	}{
		{name: "throttled", status: http.StatusTooManyRequests, body: "Too Many Requests", want: querytool.FaultRateLimited},
		{name: "html instead of crumb", status: http.StatusOK, body: "<html>consent</html>", want: querytool.FaultProtocolChanged},
		{name: "blank crumb", status: http.StatusOK, body: "  ", want: querytool.FaultProtocolChanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {})
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("unexpected request to %s", r.URL.Path)
			})
			srv := httptest.NewServer(mux)
			t.Cleanup(srv.Close)
			y := NewYahoo(WithBaseURL(srv.URL), WithCookieURL(srv.URL+"/cookie"), WithHTTPClient(srv.Client()))

			_, err := y.Fundamentals(context.Background(), "WIDG")

			require.Error(t, err)
			assert.Equal(t, tt.want, querytool.Classify(err))
		})
	}
}

func TestFundamentals_EmptyTicker(t *testing.T) {
	y := NewYahoo(WithBaseURL("http://127.0.0.1:1"))
	_, err := y.Fundamentals(context.Background(), " ")

	var inputErr *querytool.InputError
	assert.True(t, errors.As(err, &inputErr))
}

func TestRatioTool_WithYahoo(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, quoteSummaryOK)
	})
	rt := querytool.NewRatioTool(y)

	res := rt.InvokeTyped(context.Background(), querytool.Request{Input: "widg"})

	require.Equal(t, querytool.KindSuccess, res.Kind)
	debt, _ := res.Measurement.Get(querytool.MetricDebtRatio)
	cash, _ := res.Measurement.Get(querytool.MetricCashRatio)
	overall, _ := res.Measurement.Get(querytool.MetricOverall)
	assert.Equal(t, "20.00%", debt)
	assert.Equal(t, "5.00%", cash)
	assert.Equal(t, "PASS", overall)
}
