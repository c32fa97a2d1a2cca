package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Microwave-WYB/openai-helper/pkg/chat"
	"github.com/Microwave-WYB/openai-helper/pkg/config"
	"github.com/Microwave-WYB/openai-helper/pkg/functions"
	"github.com/Microwave-WYB/openai-helper/pkg/history"
	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
	"github.com/Microwave-WYB/openai-helper/pkg/stats"
	"github.com/Microwave-WYB/openai-helper/pkg/tokenizer"
)

func main() {
	var (
		configPath  string
		model       string
		noConfirm   bool
		verbose     bool
		enableStats bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "path to config file (JSON, comments allowed)")
	pflag.StringVarP(&model, "model", "m", "", "override the configured model")
	pflag.BoolVar(&noConfirm, "no-confirm", false, "execute function calls without asking")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pflag.BoolVar(&enableStats, "stats", false, "track and print usage statistics")
	pflag.Parse()

	if err := run(configPath, model, noConfirm, verbose, enableStats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, model string, noConfirm, verbose, enableStats bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if model != "" {
		cfg.Provider.Model = model
	}
	if noConfirm {
		cfg.NoConfirm = true
	}
	if verbose {
		cfg.Verbose = true
	}
	logger.SetDebug(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counter := tokenizer.Default()

	var seed []providers.Message
	if cfg.SystemPrompt != "" {
		seed = append(seed, providers.Message{Role: providers.RoleSystem, Content: cfg.SystemPrompt})
	}

	hist, err := history.NewManager(history.Config{
		TokenThreshold: cfg.History.TokenThreshold,
		MaxTokens:      cfg.History.MaxTokens,
		Method:         cfg.History.CompactingMethod,
		KeepTop:        cfg.History.KeepTop,
		KeepBottom:     cfg.History.KeepBottom,
		Seed:           seed,
		Verbose:        cfg.Verbose,
	}, counter)
	if err != nil {
		return err
	}

	provider := providers.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Proxy)

	registry := functions.NewRegistry()
	functions.RegisterBuiltins(registry, cfg.Workspace)

	cache, err := functions.NewSchemaCache(cfg.CacheFile)
	if err != nil {
		return err
	}
	registerDemoFunctions(ctx, registry, cache, provider, cfg.Provider.Model)

	session := chat.NewSession(provider, registry, cfg.Provider.Model)
	session.Verbose = cfg.Verbose
	session.NoConfirm = cfg.NoConfirm
	session.RetryDelay = cfg.RetryDelay()
	session.Options = cfg.Options()

	var tracker *stats.Tracker
	if enableStats {
		tracker = stats.NewTracker(filepath.Join(cfg.Workspace, cfg.StateDir))
		session.Tracker = tracker
		hist.SetObserver(tracker)
	}

	if err := session.Run(ctx, hist, os.Stdin, os.Stdout); err != nil {
		return err
	}

	if tracker != nil {
		fmt.Println()
		fmt.Println(tracker.Summary())
	}
	return nil
}
