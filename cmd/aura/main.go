// Package main provides the entry point for the aura assistant server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/model"
	"golang.org/x/term"

	"aura/pkg/agent"
	"aura/pkg/agent/invoke"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/assistant"
	"aura/pkg/calendar"
	"aura/pkg/config"
	"aura/pkg/httpapi"
	"aura/pkg/logx"
	auraMetrics "aura/pkg/metrics"
	"aura/pkg/persistence"
	"aura/pkg/version"
)

// PasswordEnvVar supplies the secrets password when stdin is not a terminal.
const PasswordEnvVar = "AURA_PASSWORD"

type options struct {
	configPath  string
	addr        string
	dbPath      string
	secretsPath string
	window      string
	domains     string
	debug       bool
	diagnose    bool
	usage       bool
}

func main() {
	var (
		opts        options
		showVersion bool
	)
	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to settings file (YAML or JSON)")
	flag.StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides settings)")
	flag.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides settings)")
	flag.StringVar(&opts.secretsPath, "secrets", "", "Encrypted secrets file with API keys")
	flag.StringVar(&opts.window, "window", "24h", "Window for -usage")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&opts.domains, "debug-domains", "", "Comma-separated debug domains (e.g. graph,invoke)")
	flag.BoolVar(&opts.diagnose, "diagnose", false, "Probe the configured model, print the diagnosis as JSON and exit")
	flag.BoolVar(&opts.usage, "usage", false, "Print token usage from Prometheus and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("aura %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	os.Exit(run(opts, os.Stdout))
}

// run wires the application and blocks until it is interrupted. It returns the process exit code.
func run(opts options, stdout io.Writer) int {
	logger := logx.NewLogger("aura")
	logx.SetDebug(opts.debug)
	if opts.domains != "" {
		logx.SetDebugDomains(strings.Split(opts.domains, ","))
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		logger.Error("Failed to load settings: %v", err)
		return 1
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if err := loadSecrets(cfg, opts.secretsPath, logger); err != nil {
		logger.Error("Failed to load secrets: %v", err)
		return 1
	}

	if opts.usage {
		return printUsage(cfg, opts.window, stdout, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(cfg, opts.configPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	usage := metrics.NewUsageRecorder()
	recorder := metrics.Tee(metrics.NewPrometheusRecorder(reg), usage)

	factory := agent.NewLLMClientFactory(recorder).WithSnapshot(store.Snapshot())
	engine := invoke.New(factory, logx.NewLogger("invoke"))

	db, err := persistence.InitializeDatabase(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open database %s: %v", cfg.Database.Path, err)
		return 1
	}
	ops := persistence.NewDatabaseOperations(db)
	defer func() {
		if err := ops.Close(); err != nil {
			logger.Warn("Failed to close database: %v", err)
		}
	}()

	svc, err := assistant.New(assistant.Deps{
		Settings: store,
		Invoker:  engine,
		Threads:  ops,
		Calendar: calendar.New(cfg.Google, ops),
	})
	if err != nil {
		logger.Error("Failed to build assistant: %v", err)
		return 1
	}

	if opts.diagnose {
		d := svc.Diagnose(ctx, usage)
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			logger.Error("Failed to write diagnosis: %v", err)
			return 1
		}
		if !d.Success {
			return 1
		}
		return 0
	}

	logger.Info("aura %s starting (model %s, %d keys)", version.Version, store.Snapshot().ActiveModel(), len(store.Snapshot().Credentials()))
	if err := svc.Probe(ctx); err != nil {
		logger.Warn("APPLICATION STARTING IN DEGRADED MODE: %v", err)
	} else {
		logger.Info("Startup probe succeeded")
	}

	serverOpts := []httpapi.Option{
		httpapi.WithThreads(ops),
		httpapi.WithUsage(usage),
	}
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	server := httpapi.NewServer(svc, serverOpts...)
	if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Error("Server failed: %v", err)
		return 1
	}
	logger.Info("Shutdown complete")
	return 0
}

// loadSecrets merges API keys from the encrypted secrets file into cfg. A missing file
// is not an error unless it was named explicitly.
func loadSecrets(cfg *config.Config, path string, logger *logx.Logger) error {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(filepath.Dir(cfg.Database.Path), config.SecretsFileName)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("secrets file %s: %w", path, err)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(path, password)
	if err != nil {
		return fmt.Errorf("decrypt %s: %w", path, err)
	}
	config.MergeSecretCredentials(cfg, secrets)
	logger.Info("Loaded %d secrets from %s", len(secrets), path)
	return nil
}

// readPassword takes the secrets password from the environment or, on a terminal, from a prompt.
func readPassword() (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}
	fd := int(syscall.Stdin) //nolint:unconvert // Stdin is uintptr on some platforms
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for password prompt; set %s", PasswordEnvVar)
	}
	fmt.Fprint(os.Stderr, "Secrets password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}

func printUsage(cfg *config.Config, window string, stdout io.Writer, logger *logx.Logger) int {
	if cfg.Metrics.PrometheusURL == "" {
		logger.Error("metrics.prometheus_url is not configured")
		return 1
	}
	qs, err := auraMetrics.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		logger.Error("Failed to create Prometheus client: %v", err)
		return 1
	}
	d, err := parseWindow(window)
	if err != nil {
		logger.Error("Invalid -window: %v", err)
		return 1
	}
	summary, err := qs.GetUsageSummary(context.Background(), d)
	if err != nil {
		logger.Error("Failed to query usage: %v", err)
		return 1
	}

	fmt.Fprintf(stdout, "Token usage over %s: %d total\n", summary.Window, summary.TotalTokens)
	for _, m := range summary.Models {
		fmt.Fprintf(stdout, "  %-32s prompt=%d completion=%d requests=%d failures=%d throttles=%d\n",
			m.Model, m.PromptTokens, m.CompletionTokens, m.Requests, m.Failures, m.Throttles)
	}
	for component, tokens := range summary.ByComponent {
		fmt.Fprintf(stdout, "  component %-22s tokens=%d\n", component, tokens)
	}
	return 0
}

// parseWindow accepts Prometheus durations such as "1d" or "6h30m".
func parseWindow(s string) (time.Duration, error) {
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse window %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %q", s)
	}
	return time.Duration(d), nil
}
