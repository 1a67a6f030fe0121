// Package main provides the CLI entrypoint for intervue.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/aggregator"
	"github.com/verte-zerg/intervue/internal/bank"
	"github.com/verte-zerg/intervue/internal/cache"
	"github.com/verte-zerg/intervue/internal/chain"
	"github.com/verte-zerg/intervue/internal/config"
	"github.com/verte-zerg/intervue/internal/evaluator"
	"github.com/verte-zerg/intervue/internal/historyui"
	"github.com/verte-zerg/intervue/internal/interview"
	"github.com/verte-zerg/intervue/internal/logger"
	"github.com/verte-zerg/intervue/internal/metrics"
	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/prompts"
	"github.com/verte-zerg/intervue/internal/provider"
	"github.com/verte-zerg/intervue/internal/report"
	"github.com/verte-zerg/intervue/internal/store"
	"github.com/verte-zerg/intervue/internal/tui"
)

const (
	defaultCandidate    = "Candidate"
	defaultCacheBackend = "sqlite"
	defaultRetries      = 0
)

var (
	interviewRole      string
	interviewRoleFile  string
	interviewCandidate string
	interviewKeywords  string
	interviewResume    bool
	interviewOffline   bool

	chainTimeout      time.Duration
	chainRetries      int
	chainGuardTimeout time.Duration

	cacheBackend  string
	cacheRedisURL string
	cacheTTL      time.Duration

	logLevel    string
	logFile     string
	metricsAddr string

	historyCandidate string
	historyRole      string
	historySince     string
	historyLast      int
	historyPlot      bool
	historyTUI       bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "intervue",
		Short:         "Timed, AI-evaluated technical interviews in the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runInterviewCmd,
	}

	rootCmd.Flags().StringVar(&interviewRole, "role", "", "role context used to tailor questions")
	rootCmd.Flags().StringVar(&interviewRoleFile, "role-file", "", "read the role context from a file")
	rootCmd.Flags().StringVar(&interviewCandidate, "candidate", defaultCandidate, "candidate name")
	rootCmd.Flags().StringVar(&interviewKeywords, "keywords-file", "", "keyword list for offline scoring")
	rootCmd.Flags().BoolVar(&interviewResume, "resume", false, "continue the most recent unfinished interview")
	rootCmd.Flags().BoolVar(&interviewOffline, "offline", false, "skip AI providers; use default questions and offline scoring")
	rootCmd.Flags().DurationVar(&chainTimeout, "timeout", chain.DefaultTimeout, "timeout per provider call")
	rootCmd.Flags().IntVar(&chainRetries, "retries", defaultRetries, "extra attempts per provider model")
	rootCmd.Flags().DurationVar(&chainGuardTimeout, "guard-timeout", interview.DefaultGuardTimeout, "give up on question generation after this long")
	rootCmd.Flags().StringVar(&cacheBackend, "cache", defaultCacheBackend, "evaluation cache backend: none, sqlite or redis")
	rootCmd.Flags().StringVar(&cacheRedisURL, "redis-url", "", "redis address for --cache redis")
	rootCmd.Flags().DurationVar(&cacheTTL, "cache-ttl", chain.DefaultCacheTTL, "how long cached evaluations are kept")
	rootCmd.Flags().StringVar(&logLevel, "log-level", logger.DefaultLevel, "log level: debug, info, warn, error or off")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log file (default: $XDG_STATE_HOME/intervue/intervue.log)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newBankCmd())

	return rootCmd
}

func runInterviewCmd(cmd *cobra.Command, _ []string) error {
	loadDotEnv()
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFileConfig(cmd, fileCfg); err != nil {
		return err
	}
	if err := validateConfig(); err != nil {
		return err
	}
	role, err := resolveRole(interviewRole, interviewRoleFile)
	if err != nil {
		return err
	}
	if role == "" && !interviewResume {
		return fmt.Errorf("--role or --role-file is required")
	}

	if logFile == "" {
		logFile = config.DefaultLogPath()
	}
	log, err := logger.New(logger.Options{Level: logLevel, Path: logFile})
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	if metricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, metricsAddr, log.Named("metrics")); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	var (
		source     interview.QuestionSource
		grader     evaluator.Grader
		summarizer aggregator.Summarizer
		guard      = chainGuardTimeout
	)
	if !interviewOffline {
		evalCache, closeCache, err := openCache(ctx, st, log)
		if err != nil {
			return err
		}
		defer closeCache()

		candidates, err := buildCandidates(config.ResolveProviders(fileCfg, os.Getenv), os.Getenv, log)
		if err != nil {
			return err
		}
		ch := chain.New(candidates, chain.Options{
			Timeout:  chainTimeout,
			Retries:  chainRetries,
			Cache:    evalCache,
			CacheTTL: cacheTTL,
			Metrics:  m,
			Logger:   log,
		})
		if ch.Len() == 0 {
			log.Warn("no usable provider credentials; using default questions and offline scoring")
		}
		source, grader, summarizer = ch, ch, ch
		if guard = interview.GuardTimeout(chainGuardTimeout, ch.Budget()); guard != chainGuardTimeout {
			log.Info("raised guard timeout to cover the provider chain", zap.Duration("guard_timeout", guard))
		}
	}

	evalOpts := []evaluator.Option{evaluator.WithMetrics(m), evaluator.WithLogger(log)}
	if interviewKeywords != "" {
		words, err := evaluator.LoadKeywords(interviewKeywords)
		if err != nil {
			return fmt.Errorf("failed to load keywords: %w", err)
		}
		evalOpts = append(evalOpts, evaluator.WithKeywords(words))
	}

	orch := interview.New(interview.Options{
		Questions:    source,
		Scorer:       evaluator.New(grader, evalOpts...),
		Finalizer:    aggregator.New(summarizer, m, log),
		Store:        st,
		Metrics:      m,
		Logger:       log,
		GuardTimeout: guard,
	})
	orch.Open(ctx, interviewCandidate, role, interviewResume)
	defer orch.Close()

	program := tea.NewProgram(tui.NewModel(orch), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// openCache selects the evaluation cache backend. The returned func
// releases it.
func openCache(ctx context.Context, st *store.Store, log *zap.Logger) (cache.Cache, func(), error) {
	switch cacheBackend {
	case "none":
		return cache.Nop{}, func() {}, nil
	case "redis":
		rc, err := cache.DialRedis(ctx, cacheRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		return rc, func() {
			if err := rc.Close(); err != nil {
				log.Warn("failed to close redis cache", zap.Error(err))
			}
		}, nil
	default:
		if n, err := st.PurgeExpired(ctx); err != nil {
			log.Warn("failed to purge expired cache entries", zap.Error(err))
		} else if n > 0 {
			log.Debug("purged expired cache entries", zap.Int64("count", n))
		}
		return st, func() {}, nil
	}
}

// buildCandidates turns each configured provider model into a chain
// candidate, in order.
func buildCandidates(providers []config.ProviderConfig, getenv func(string) string, log *zap.Logger) ([]chain.Candidate, error) {
	pm, err := prompts.NewManager()
	if err != nil {
		return nil, err
	}
	var out []chain.Candidate
	for _, p := range providers {
		prov, err := provider.New(provider.Spec{
			Type:    p.Type,
			Name:    p.Name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey(getenv),
			Logger:  log,
		}, pm)
		if err != nil {
			return nil, fmt.Errorf("failed to configure provider %s: %w", p.Type, err)
		}
		for _, modelName := range p.Models {
			out = append(out, chain.Candidate{Provider: prov, Model: modelName})
		}
	}
	return out, nil
}

func resolveRole(role, roleFile string) (string, error) {
	if roleFile == "" {
		return strings.TrimSpace(role), nil
	}
	data, err := os.ReadFile(roleFile)
	if err != nil {
		return "", fmt.Errorf("failed to read role file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("role file %s is empty", roleFile)
	}
	return text, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logErrf("failed to load .env: %v\n", err)
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed interviews",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyCandidate, "candidate", "", "candidate filter")
	cmd.Flags().StringVar(&historyRole, "role", "", "role filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N interviews")
	cmd.Flags().BoolVar(&historyPlot, "plot", false, "draw the score trend")
	cmd.Flags().BoolVarP(&historyTUI, "interactive", "i", false, "browse interviews in a TUI")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	filter, err := historyFilter(historyCandidate, historyRole, historySince, historyLast)
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	if historyTUI {
		program := tea.NewProgram(historyui.NewModel(st, filter), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run history TUI: %w", err)
		}
		return nil
	}

	h, err := report.Build(cmd.Context(), st, filter)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := report.Render(out, h, 0); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if historyPlot {
		if _, err := fmt.Fprintln(out); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if err := report.RenderTrend(out, h.Scores(), 0, 0); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func historyFilter(candidate, role, since string, last int) (model.HistoryFilter, error) {
	if last < 0 {
		return model.HistoryFilter{}, fmt.Errorf("--last must be >= 0")
	}
	filter := model.HistoryFilter{Candidate: candidate, Role: role, Last: last}
	if since != "" {
		parsed, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return model.HistoryFilter{}, fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	return filter, nil
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the provider fallback order",
		Args:  cobra.NoArgs,
		RunE:  runProvidersCmd,
	}
}

func runProvidersCmd(cmd *cobra.Command, _ []string) error {
	loadDotEnv()
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	providers := config.ResolveProviders(fileCfg, os.Getenv)
	if len(providers) == 0 {
		logErrf("No providers configured and no API keys found. Set one of: %s\n", strings.Join(knownKeyVars(), ", "))
		return fmt.Errorf("no providers available")
	}
	return writeProviders(cmd, providers, os.Getenv)
}

func writeProviders(cmd *cobra.Command, providers []config.ProviderConfig, getenv func(string) string) error {
	rows := [][]string{}
	order := 1
	for _, p := range providers {
		status := "ready"
		if !provider.ValidKey(p.APIKey(getenv)) {
			status = "missing key"
		}
		name := p.Type
		if p.Name != "" {
			name = p.Name
		}
		for _, modelName := range p.Models {
			rows = append(rows, []string{strconv.Itoa(order), name, modelName, p.KeySource(), status})
			order++
		}
	}
	if err := report.WriteTable(cmd.OutOrStdout(), []string{"#", "Provider", "Model", "Key", "Status"}, rows, map[int]bool{0: true}); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func knownKeyVars() []string {
	var out []string
	for _, typ := range provider.Types() {
		out = append(out, provider.KeyEnv[typ]...)
	}
	return out
}

func newBankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bank",
		Short: "Print the default question set",
		Args:  cobra.NoArgs,
		RunE:  runBankCmd,
	}
}

func runBankCmd(cmd *cobra.Command, _ []string) error {
	rows := [][]string{}
	for i, q := range bank.Questions() {
		rows = append(rows, []string{strconv.Itoa(i + 1), string(q.Difficulty), fmt.Sprintf("%ds", q.TimeLimit), q.Text})
	}
	if err := report.WriteTable(cmd.OutOrStdout(), []string{"#", "Tier", "Limit", "Question"}, rows, map[int]bool{0: true, 2: true}); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// applyFileConfig copies config file values into flags the user did not set.
func applyFileConfig(cmd *cobra.Command, cfg config.FileConfig) error {
	applyStringConfig(cmd, "role", &interviewRole, cfg.Interview.Role)
	applyStringConfig(cmd, "role-file", &interviewRoleFile, cfg.Interview.RoleFile)
	applyStringConfig(cmd, "candidate", &interviewCandidate, cfg.Interview.Candidate)
	applyStringConfig(cmd, "keywords-file", &interviewKeywords, cfg.Interview.KeywordsFile)
	applyIntConfig(cmd, "retries", &chainRetries, cfg.Chain.Retries)
	applyStringConfig(cmd, "cache", &cacheBackend, cfg.Cache.Backend)
	applyStringConfig(cmd, "redis-url", &cacheRedisURL, cfg.Cache.RedisURL)
	applyStringConfig(cmd, "log-level", &logLevel, cfg.Log.Level)
	applyStringConfig(cmd, "log-file", &logFile, cfg.Log.File)
	applyStringConfig(cmd, "metrics-addr", &metricsAddr, cfg.Metrics.Addr)
	if err := applyDurationConfig(cmd, "timeout", &chainTimeout, cfg.Chain.Timeout); err != nil {
		return err
	}
	if err := applyDurationConfig(cmd, "guard-timeout", &chainGuardTimeout, cfg.Chain.GuardTimeout); err != nil {
		return err
	}
	return applyDurationConfig(cmd, "cache-ttl", &cacheTTL, cfg.Cache.TTL)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	d, err := config.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s in config: %w", name, err)
	}
	if d > 0 {
		*target = d
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# intervue configuration
# Uncomment a value to enable it. CLI flags override config values.

[interview]
# role = "backend engineer, Go and PostgreSQL"   # Role context for questions
# role-file = "/path/to/role.txt"                # Read role context from a file
# candidate = %q
# keywords-file = "/path/to/keywords.txt"        # Offline scoring keywords

[chain]
# timeout = %q            # Timeout per provider call
# retries = %d             # Extra attempts per provider model
# guard-timeout = %q       # Give up on question generation after this long

# Providers are tried in order, one candidate per model. Without any
# [[providers]] entries, every provider with an API key in the environment
# is used.
# [[providers]]
# type = "openrouter"      # openai, deepseek, groq, openrouter, claude, gemini
# models = ["meta-llama/llama-3.1-8b-instruct:free"]
# api-key-env = "OPENROUTER_API_KEY"
# base-url = ""

[cache]
# backend = %q        # none, sqlite or redis
# redis-url = "redis://localhost:6379/0"
# ttl = %q

[log]
# level = %q
# file = ""

[metrics]
# addr = "127.0.0.1:9464"
`,
		defaultCandidate,
		chain.DefaultTimeout.String(),
		defaultRetries,
		interview.DefaultGuardTimeout.String(),
		defaultCacheBackend,
		chain.DefaultCacheTTL.String(),
		logger.DefaultLevel,
	)
}

func validateConfig() error {
	if strings.TrimSpace(interviewCandidate) == "" {
		return fmt.Errorf("--candidate must not be empty")
	}
	if chainTimeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	if chainRetries < 0 {
		return fmt.Errorf("--retries must be >= 0")
	}
	if chainGuardTimeout <= 0 {
		return fmt.Errorf("--guard-timeout must be > 0")
	}
	switch cacheBackend {
	case "none", "sqlite":
	case "redis":
		if strings.TrimSpace(cacheRedisURL) == "" {
			return fmt.Errorf("--redis-url is required with --cache redis")
		}
	default:
		return fmt.Errorf("--cache must be one of none, sqlite, redis")
	}
	if cacheTTL < 0 {
		return fmt.Errorf("--cache-ttl must be >= 0")
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
