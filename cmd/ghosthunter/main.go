package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/ghosthunter/internal/config"
	"github.com/stellarlinkco/ghosthunter/internal/cron"
	"github.com/stellarlinkco/ghosthunter/internal/history"
	"github.com/stellarlinkco/ghosthunter/internal/investigation"
	"github.com/stellarlinkco/ghosthunter/internal/logging"
	"github.com/stellarlinkco/ghosthunter/internal/notify"
	"github.com/stellarlinkco/ghosthunter/internal/querytool"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

// Deps are the injectable collaborators of the commands. Zero fields get the
// production implementations.
type Deps struct {
	RuntimeFactory investigation.RuntimeFactory
	Search         querytool.SearchProvider
	Finance        querytool.FinanceProvider
	Notifier       investigation.Notifier
	ToolOptions    []querytool.Option
	Stdout         io.Writer
	Stderr         io.Writer
}

type app struct {
	deps    Deps
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], Deps{})
	stop()
	os.Exit(code)
}

// run executes the command line and maps the outcome to a process exit code.
func run(ctx context.Context, args []string, deps Deps) int {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	root := newRootCmd(deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			fmt.Fprintln(deps.Stderr, "\nInvestigation interrupted by user")
			return exitInterrupted
		}
		fmt.Fprintf(deps.Stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

func newRootCmd(deps Deps) *cobra.Command {
	a := &app{deps: deps}

	root := &cobra.Command{
		Use:           "ghosthunter",
		Short:         "ghosthunter - forensic compliance investigations of companies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.investigateCmd(),
		a.initCmd(),
		a.statusCmd(),
		a.watchCmd(),
		a.historyCmd(),
		a.toolCmd("search <query>", "Run one web search", querytool.SearchToolName, false),
		a.toolCmd("ratios <ticker>", "Screen a ticker against the AAOIFI debt and cash ratios", querytool.RatioToolName, true),
		a.toolCmd("business <ticker>", "Show a company's business summary for activity screening", querytool.BusinessToolName, true),
	)
	return root
}

// setup loads the configuration and installs the logger. The returned
// function closes the log file.
func (a *app) setup() (*config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closeLog, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: a.verbose,
		File:    cfg.Log.File,
		Console: a.deps.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, func() { _ = closeLog() }, nil
}

// investigator builds the investigation pipeline. With record set and
// history enabled, runs are logged to the history database; the returned
// function closes it.
func (a *app) investigator(cfg *config.Config, record bool) (*investigation.Investigator, func(), error) {
	notifier := a.deps.Notifier
	if notifier == nil && cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram)
		if err != nil {
			return nil, nil, fmt.Errorf("create telegram notifier: %w", err)
		}
		notifier = tg
	}

	opts := investigation.Options{
		RuntimeFactory: a.deps.RuntimeFactory,
		Search:         a.deps.Search,
		Finance:        a.deps.Finance,
		Notifier:       notifier,
		Logger:         logging.Logger(),
		ToolOptions:    a.deps.ToolOptions,
	}
	closeFn := func() {}
	if record && cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open history: %w", err)
		}
		opts.History = store
		closeFn = func() { _ = store.Close() }
	}
	return investigation.New(cfg, opts), closeFn, nil
}

func (a *app) investigateCmd() *cobra.Command {
	var (
		output     string
		ticker     string
		maxResults int
		region     string
	)
	cmd := &cobra.Command{
		Use:   "investigate <company>",
		Short: "Investigate a company and write a forensic risk report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			company := strings.TrimSpace(args[0])
			if company == "" {
				return investigation.ErrEmptyCompany
			}
			cfg, done, err := a.setup()
			if err != nil {
				return err
			}
			defer done()

			cfg = cfg.WithSearch(maxResults, region)
			if err := cfg.Validate(); err != nil {
				if errors.Is(err, config.ErrMissingAPIKey) {
					return fmt.Errorf("%w: run 'ghosthunter init' or set OPENAI_API_KEY", err)
				}
				return fmt.Errorf("invalid configuration: %w", err)
			}
			inv, closeHistory, err := a.investigator(cfg, true)
			if err != nil {
				return err
			}
			defer closeHistory()

			out := a.deps.Stdout
			fmt.Fprintf(out, "Starting investigation: %s\n", company)
			path, err := inv.Run(cmd.Context(), investigation.Request{
				Company:    company,
				Ticker:     ticker,
				OutputPath: output,
			})
			if err != nil {
				return err
			}
			printBanner(out, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Report path (default: <output_dir>/<Company>_Forensic_Report.md)")
	cmd.Flags().StringVar(&ticker, "ticker", "", "Stock ticker; enables Shariah compliance screening")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Search results per query (overrides config)")
	cmd.Flags().StringVar(&region, "region", "", "Search region such as wt-wt or sg-en (overrides config)")
	return cmd
}

func printBanner(w io.Writer, path string) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "INVESTIGATION COMPLETE")
	fmt.Fprintf(w, "Report saved to: %s\n", path)
	fmt.Fprintln(w, line)
}

// toolCmd runs a single query tool outside the agent, for checking provider
// connectivity by hand.
func (a *app) toolCmd(use, short, toolName string, financial bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := a.setup()
			if err != nil {
				return err
			}
			defer done()

			inv, _, err := a.investigator(cfg, false)
			if err != nil {
				return err
			}
			input := strings.Join(args, " ")
			var ticker string
			if financial {
				ticker = input
			}
			reg, err := inv.Tools(ticker)
			if err != nil {
				return err
			}
			text := reg.Invoke(cmd.Context(), toolName, input)
			fmt.Fprintln(a.deps.Stdout, text)
			return cmd.Context().Err()
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := a.deps.Stdout
			cfgPath := config.ConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
				return nil
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("stat config: %w", err)
			}

			if err := config.SaveConfig(config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Created config: %s\n", cfgPath)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintf(out, "  1. Edit %s to set your API key\n", cfgPath)
			fmt.Fprintln(out, "  2. Or set OPENAI_API_KEY / GHOSTHUNTER_API_KEY")
			fmt.Fprintln(out, "  3. Run 'ghosthunter investigate \"Company Name\"'")
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ghosthunter configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := a.deps.Stdout
			cfg, err := config.LoadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config: error (%v)\n", err)
				return nil
			}

			fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
			fmt.Fprintf(out, "Provider: %s\n", cfg.ProviderType())
			fmt.Fprintf(out, "Model: %s\n", cfg.ModelName())
			fmt.Fprintf(out, "API Key: %s\n", maskKey(cfg.Provider.APIKey))
			fmt.Fprintf(out, "Search: region=%s safesearch=%s max_results=%d\n",
				cfg.Search.Region, cfg.Search.SafeSearch, cfg.Search.MaxResults)
			fmt.Fprintf(out, "Retry: attempts=%d backoff=%s\n", cfg.Retry.MaxAttempts, cfg.Retry.Backoff)
			fmt.Fprintf(out, "Reports: %s\n", cfg.OutputDir)
			fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Notify.Telegram.Enabled)

			svc := cron.NewService(config.WatchPath())
			fmt.Fprintf(out, "Watchlist: %d jobs\n", len(svc.ListJobs()))
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "Status: not ready (%v)\n", err)
			} else {
				fmt.Fprintln(out, "Status: ready")
			}
			return nil
		},
	}
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func (a *app) watchCmd() *cobra.Command {
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Manage companies re-investigated on a schedule",
	}

	var name, ticker, schedule string
	add := &cobra.Command{
		Use:   "add <company>",
		Short: "Add a company to the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := cron.NewService(config.WatchPath())
			job, err := svc.AddJob(name, args[0], ticker, schedule)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.deps.Stdout, "Added job %s (%s) schedule %q\n", job.ID, job.Company, job.Schedule)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Job name (default: company)")
	add.Flags().StringVar(&ticker, "ticker", "", "Stock ticker for Shariah screening")
	add.Flags().StringVar(&schedule, "schedule", "0 9 * * 1", "Cron schedule (5 fields or @daily/@every)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List watchlist jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := cron.NewService(config.WatchPath()).ListJobs()
			if len(jobs) == 0 {
				fmt.Fprintln(a.deps.Stdout, "No watch jobs")
				return nil
			}
			tw := tabwriter.NewWriter(a.deps.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMPANY\tTICKER\tSCHEDULE\tENABLED\tLAST RUN\tSTATUS")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
					j.ID, j.Company, orDash(j.Ticker), j.Schedule, j.Enabled,
					formatMs(j.State.LastRunAtMs), orDash(j.State.LastStatus))
			}
			return tw.Flush()
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a watchlist job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cron.NewService(config.WatchPath()).RemoveJob(args[0]) {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Fprintf(a.deps.Stdout, "Removed job %s\n", args[0])
			return nil
		},
	}

	toggle := func(use, short string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				job, err := cron.NewService(config.WatchPath()).EnableJob(args[0], enabled)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.deps.Stdout, "Job %s enabled=%v\n", job.ID, job.Enabled)
				return nil
			},
		}
	}

	runCmd := &cobra.Command{
		Use:   "run [id]",
		Short: "Run one job now, or without an id run the scheduler until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := a.setup()
			if err != nil {
				return err
			}
			defer done()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			inv, closeHistory, err := a.investigator(cfg, true)
			if err != nil {
				return err
			}
			defer closeHistory()

			svc := cron.NewService(config.WatchPath())
			svc.OnJob = func(ctx context.Context, job cron.Job) (string, error) {
				return inv.Run(ctx, investigation.Request{Company: job.Company, Ticker: job.Ticker})
			}

			ctx := cmd.Context()
			if len(args) == 1 {
				path, err := svc.RunJob(ctx, args[0])
				if err != nil {
					return err
				}
				printBanner(a.deps.Stdout, path)
				return nil
			}

			if err := svc.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(a.deps.Stdout, "Watching %d jobs (Ctrl+C to stop)\n", len(svc.ListJobs()))
			<-ctx.Done()
			svc.Stop()
			return nil
		},
	}

	watch.AddCommand(add, list, remove,
		toggle("enable", "Enable a watchlist job", true),
		toggle("disable", "Disable a watchlist job", false),
		runCmd,
	)
	return watch
}

func (a *app) historyCmd() *cobra.Command {
	var company string
	var limit, matchLimit int

	openStore := func() (*history.Store, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return history.Open(cfg.History.Path)
	}

	hist := &cobra.Command{
		Use:   "history",
		Short: "List past investigations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), company, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.deps.Stdout, "No investigations recorded")
				return nil
			}
			tw := tabwriter.NewWriter(a.deps.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tCOMPANY\tTICKER\tSTATUS\tDURATION\tREPORT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Company, orDash(r.Ticker),
					r.Status, r.Duration().Round(time.Second), orDash(r.ReportPath))
			}
			return tw.Flush()
		},
	}
	hist.Flags().StringVar(&company, "company", "", "Only show runs for this company")
	hist.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")

	search := &cobra.Command{
		Use:   "search <terms>",
		Short: "Full-text search over saved reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Search(cmd.Context(), strings.Join(args, " "), matchLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.deps.Stdout, "No matching reports")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(a.deps.Stdout, "#%d %s (%s) %s\n  %s\n",
					r.ID, r.Company, r.StartedAt.Local().Format("2006-01-02"), r.ReportPath, r.Snippet)
			}
			return nil
		},
	}
	search.Flags().IntVar(&matchLimit, "limit", 10, "Maximum matches to show")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the report of a past investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if run.Status != history.StatusOK {
				fmt.Fprintf(a.deps.Stdout, "Run %d failed: %s\n", run.ID, run.Error)
				return nil
			}
			fmt.Fprintln(a.deps.Stdout, run.Report)
			return nil
		},
	}

	hist.AddCommand(search, show)
	return hist
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}
