package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/launcher"
	"github.com/iconidentify/ytgrabba/internal/locator"
	"github.com/iconidentify/ytgrabba/internal/parser"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/translator"
	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
)

// errHelp is returned after -h printed the command usage.
var errHelp = errors.New("help requested")

// newFlagSet creates a command flag set with the shared -config flag.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("YTGRABBA_CONFIG"), "Path to config file")
	return fs, configPath
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	locator *locator.PathLocator
}

func newApp(configPath string, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		locator: newLocator(cfg.Tool),
	}, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newLocator(cfg config.ToolConfig) *locator.PathLocator {
	opts := []locator.Option{locator.WithCache()}
	if cfg.Path != "" {
		opts = append(opts, locator.WithOverride(toolName(cfg), cfg.Path))
	}
	if cfg.FFmpegPath != "" {
		opts = append(opts, locator.WithOverride(ffmpeg.FFmpegName, cfg.FFmpegPath))
	}
	if cfg.FFprobePath != "" {
		opts = append(opts, locator.WithOverride(ffmpeg.FFprobeName, cfg.FFprobePath))
	}
	if len(cfg.SearchDirs) > 0 {
		opts = append(opts, locator.WithSearchDirs(cfg.SearchDirs...))
	}
	return locator.New(opts...)
}

func toolName(cfg config.ToolConfig) string {
	if cfg.Name == "" {
		return downloader.DefaultToolName
	}
	return cfg.Name
}

// newClassifier puts configured rules ahead of the built-in ones.
func newClassifier(cfg config.ClassifierConfig) (parser.Classifier, error) {
	if len(cfg.Rules) == 0 {
		return parser.DefaultClassifier(), nil
	}

	rules := make([]parser.Rule, 0, len(cfg.Rules)+len(parser.DefaultRules()))
	for _, r := range cfg.Rules {
		rules = append(rules, parser.Rule{
			Kind:    domain.EventKind(r.Kind),
			Pattern: r.Pattern,
			Stream:  domain.StreamName(r.Stream),
		})
	}
	if !cfg.ReplaceDefaults {
		rules = append(rules, parser.DefaultRules()...)
	}
	return parser.NewRuleClassifier(rules)
}

// engine wires locator, launcher, parser and translator into an engine.
func (a *app) engine() (*downloader.Engine, error) {
	cfg := a.cfg

	classifier, err := newClassifier(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("%w: classifier: %w", errConfig, err)
	}
	tr, err := translator.New(cfg.Classifier.Transient, cfg.Classifier.Permanent)
	if err != nil {
		return nil, fmt.Errorf("%w: translator: %w", errConfig, err)
	}

	opts := launcher.DefaultOptions()
	if cfg.Tool.BaseArgs != nil {
		opts.BaseArgs = cfg.Tool.BaseArgs
	}
	opts.WorkDir = cfg.Tool.WorkDir
	opts.Env = cfg.Tool.Env
	if path, err := a.locator.Locate(ffmpeg.FFmpegName); err == nil {
		opts.HelperPath = path
	} else {
		a.logger.Debug("ffmpeg not found, tool will search on its own", "error", err)
	}

	var parserOpts []parser.Option
	if cfg.Tool.MaxLineLength > 0 {
		parserOpts = append(parserOpts, parser.WithMaxLineLength(cfg.Tool.MaxLineLength))
	}

	e := downloader.NewEngine(
		downloader.EngineConfig{
			ToolName: toolName(cfg.Tool),
			Retry: downloader.RetryConfig{
				MaxAttempts:   cfg.Retry.MaxAttempts,
				InitialDelay:  cfg.Retry.InitialDelay,
				MaxDelay:      cfg.Retry.MaxDelay,
				BackoffFactor: cfg.Retry.BackoffFactor,
			},
		},
		a.locator,
		launcher.New(opts),
		parser.New(classifier, parserOpts...),
		tr,
	)
	e.SetLogger(a.logger)

	if cfg.Tool.Probe {
		prober, err := ffmpeg.NewProber(a.locator)
		if err != nil {
			a.logger.Warn("media probing disabled", "error", err)
		} else {
			e.SetProber(prober)
		}
	}
	return e, nil
}

// openHistory opens the history store. Failures are logged and yield nil
// so downloads still work without it.
func (a *app) openHistory() *repository.SQLiteHistoryRepository {
	h, err := repository.OpenHistory(a.cfg.Storage.HistoryPath)
	if err != nil {
		a.logger.Warn("history disabled", "path", a.cfg.Storage.HistoryPath, "error", err)
		return nil
	}
	return h
}
