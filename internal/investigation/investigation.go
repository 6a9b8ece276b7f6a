// Package investigation drives one forensic investigation: it registers the
// query tools with the agent runtime, runs the task and saves the report.
package investigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/google/uuid"

	"github.com/stellarlinkco/ghosthunter/internal/config"
	"github.com/stellarlinkco/ghosthunter/internal/finance"
	"github.com/stellarlinkco/ghosthunter/internal/history"
	"github.com/stellarlinkco/ghosthunter/internal/querytool"
	"github.com/stellarlinkco/ghosthunter/internal/report"
	"github.com/stellarlinkco/ghosthunter/internal/search"
)

// ErrEmptyCompany is returned by Run for a blank company name.
var ErrEmptyCompany = errors.New("company name cannot be empty")

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime interface
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime with the given system prompt and tools.
type RuntimeFactory func(cfg *config.Config, sysPrompt string, tools []tool.Tool) (Runtime, error)

// DefaultRuntimeFactory creates the agentsdk-go runtime. Only the supplied
// tools are registered, so the agent has no shell or file access.
func DefaultRuntimeFactory(cfg *config.Config, sysPrompt string, tools []tool.Tool) (Runtime, error) {
	temperature := cfg.Agent.Temperature
	var provider api.ModelFactory
	switch cfg.ProviderType() {
	case config.ProviderAnthropic:
		provider = &model.AnthropicProvider{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			ModelName:   cfg.ModelName(),
			MaxTokens:   cfg.Agent.MaxTokens,
			Temperature: &temperature,
		}
	default:
		provider = &model.OpenAIProvider{
			APIKey:      cfg.Provider.APIKey,
			BaseURL:     cfg.Provider.BaseURL,
			ModelName:   cfg.ModelName(),
			MaxTokens:   cfg.Agent.MaxTokens,
			Temperature: &temperature,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:   cfg.Agent.Workspace,
		ModelFactory:  provider,
		SystemPrompt:  sysPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
		Tools:         tools,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// Notifier is told about every saved report.
type Notifier interface {
	NotifyReport(ctx context.Context, company, path, content string) error
}

// Recorder keeps a log of finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) (int64, error)
}

// Options for creating an Investigator. Zero fields get production defaults,
// except Notifier and History which stay off when nil.
type Options struct {
	RuntimeFactory RuntimeFactory
	Search         querytool.SearchProvider
	Finance        querytool.FinanceProvider
	Notifier       Notifier
	History        Recorder
	Logger         *slog.Logger
	// ToolOptions are appended to every query tool, e.g. to replace the sleep
	// function in tests.
	ToolOptions []querytool.Option
}

type Investigator struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger
}

// Request describes one investigation.
type Request struct {
	Company string
	// Ticker enables the Shariah screening tools.
	Ticker string
	// OutputPath overrides the report path derived from Company.
	OutputPath string
}

// New creates an Investigator. cfg is treated as read-only.
func New(cfg *config.Config, opts Options) *Investigator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("component", "investigation")
	if opts.RuntimeFactory == nil {
		opts.RuntimeFactory = DefaultRuntimeFactory
	}
	if opts.Search == nil {
		ddgOpts := []search.Option{
			search.WithLogger(opts.Logger),
			search.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Search.TimeoutSeconds)}),
		}
		if cfg.Search.Endpoint != "" {
			ddgOpts = append(ddgOpts, search.WithEndpoint(cfg.Search.Endpoint))
		}
		opts.Search = search.NewDuckDuckGo(ddgOpts...)
	}
	if opts.Finance == nil {
		yOpts := []finance.Option{
			finance.WithLogger(opts.Logger),
			finance.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Finance.TimeoutSeconds)}),
		}
		if cfg.Finance.BaseURL != "" {
			yOpts = append(yOpts, finance.WithBaseURL(cfg.Finance.BaseURL))
		}
		opts.Finance = finance.NewYahoo(yOpts...)
	}
	return &Investigator{cfg: cfg, opts: opts, log: log}
}

// Tools builds the registry for one run: the search tool always, plus the
// ratio and business tools when a ticker is given.
func (inv *Investigator) Tools(ticker string) (*querytool.Registry, error) {
	toolOpts := append([]querytool.Option{
		querytool.WithRetryPolicy(inv.cfg.RetryPolicy()),
		querytool.WithLogger(inv.opts.Logger),
	}, inv.opts.ToolOptions...)

	tools := []querytool.Tool{
		querytool.NewSearchTool(inv.opts.Search, inv.cfg.SearchSettings(), toolOpts...),
	}
	if ticker != "" {
		tools = append(tools,
			querytool.NewRatioTool(inv.opts.Finance, toolOpts...),
			querytool.NewBusinessTool(inv.opts.Finance, toolOpts...),
		)
	}
	return querytool.NewRegistry(tools...)
}

// Run investigates req.Company and returns the saved report path.
func (inv *Investigator) Run(ctx context.Context, req Request) (path string, err error) {
	company := strings.TrimSpace(req.Company)
	if company == "" {
		return "", ErrEmptyCompany
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))

	sessionID := uuid.NewString()
	log := inv.log.With("company", company, "session", sessionID)
	log.Info("starting investigation", "ticker", ticker)

	run := history.Run{SessionID: sessionID, Company: company, Ticker: ticker, StartedAt: time.Now()}
	defer func() { inv.record(ctx, log, run, err) }()

	registry, err := inv.Tools(ticker)
	if err != nil {
		return "", fmt.Errorf("build tools: %w", err)
	}
	log.Debug("tools registered", "tools", registry.Names())

	rt, err := inv.opts.RuntimeFactory(inv.cfg, SystemPrompt(), registry.AgentTools())
	if err != nil {
		return "", err
	}
	defer rt.Close()

	resp, err := rt.Run(ctx, api.Request{
		Prompt:    TaskPrompt(company, ticker),
		SessionID: sessionID,
	})
	if err != nil {
		log.Error("investigation failed", "error", err)
		return "", fmt.Errorf("investigation failed: %w", err)
	}
	if resp == nil || resp.Result == nil || strings.TrimSpace(resp.Result.Output) == "" {
		return "", fmt.Errorf("investigation failed: agent returned an empty report")
	}
	content := resp.Result.Output
	run.ToolCalls = len(resp.Result.ToolCalls)
	log.Info("agent finished", "elapsed", time.Since(run.StartedAt).Round(time.Millisecond),
		"tool_calls", run.ToolCalls)

	path = strings.TrimSpace(req.OutputPath)
	if path == "" {
		path = report.OutputPath(inv.cfg.OutputDir, company)
	}
	if err := report.Write(path, content); err != nil {
		return "", err
	}
	log.Info("report generated", "path", path)
	run.ReportPath = path
	run.Report = content

	if inv.opts.Notifier != nil {
		if err := inv.opts.Notifier.NotifyReport(ctx, company, path, content); err != nil {
			log.Warn("notify failed", "error", err)
		}
	}
	return path, nil
}

// record stores the outcome of a run. It runs even after ctx is canceled so
// interrupted investigations are logged too.
func (inv *Investigator) record(ctx context.Context, log *slog.Logger, run history.Run, err error) {
	if inv.opts.History == nil {
		return
	}
	run.FinishedAt = time.Now()
	run.Status = history.StatusOK
	if err != nil {
		run.Status = history.StatusError
		run.Error = err.Error()
		run.Report = ""
	}
	if _, rerr := inv.opts.History.Record(context.WithoutCancel(ctx), run); rerr != nil {
		log.Warn("record history failed", "error", rerr)
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 15 * time.Second
	}
	return time.Duration(n) * time.Second
}
