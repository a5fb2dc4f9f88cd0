package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/marcin-skalski/prwatch/internal/config"
	"github.com/marcin-skalski/prwatch/internal/daemon"
	"github.com/marcin-skalski/prwatch/internal/github"
	"github.com/marcin-skalski/prwatch/internal/input"
	"github.com/marcin-skalski/prwatch/internal/logging"
	"github.com/marcin-skalski/prwatch/internal/poller"
	"github.com/marcin-skalski/prwatch/internal/tui"
	"github.com/marcin-skalski/prwatch/internal/worker"
)

type CLI struct {
	Config   string `help:"Path to the config file (default ~/.config/prwatch/config.yaml)" type:"path" env:"PRWATCH_CONFIG"`
	LogLevel string `help:"Log level: debug, info, warn, error (overrides config)" env:"PRWATCH_LOG_LEVEL"`
	LogFile  string `help:"Log file path (overrides config)" type:"path" env:"PRWATCH_LOG_FILE"`
	Refresh  int    `help:"PR list refresh interval in seconds (overrides config)" env:"PRWATCH_REFRESH"`
	NoMouse  bool   `name:"no-mouse" help:"Do not enable terminal mouse reporting" env:"PRWATCH_NO_MOUSE"`
	NoTUI    bool   `name:"no-tui" help:"Run headless and log PR status changes" env:"PRWATCH_NO_TUI"`
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("prwatch"),
		kong.Description("Live dashboard of CI and review status for your open pull requests"),
		kong.UsageOnError(),
	)
	if err := kctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	path := c.Config
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.LogFile != "" {
		cfg.LogFile = c.LogFile
	}
	switch c.LogLevel {
	case "":
	case "debug", "info", "warn", "error":
		cfg.Log.Level = c.LogLevel
	default:
		return fmt.Errorf("invalid --log-level %q (debug|info|warn|error)", c.LogLevel)
	}
	if c.Refresh < 0 {
		return fmt.Errorf("--refresh must be positive, got %d", c.Refresh)
	}

	enableTUI := !c.NoTUI &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, err := logging.SetupLogger(cfg.LogPath(), cfg.LogLevel(), enableTUI)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logging.CloseFile() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresh := cfg.RefreshInterval()
	if c.Refresh > 0 {
		refresh = time.Duration(c.Refresh) * time.Second
	}

	o := poller.New(
		github.NewClient(logger),
		&flagConfig{File: config.File{Path: path}, refresh: c.Refresh},
		poller.NewStore(refresh, time.Now),
		logger,
	)

	if !enableTUI {
		logger.Info("prwatch starting (headless)", "config", path, "refresh", refresh)
		return daemon.New(o, worker.New(worker.DefaultLimit, logger), logger).Run(ctx)
	}

	logger.Info("prwatch starting", "config", path, "refresh", refresh, "mouse", !c.NoMouse)
	return runTUI(ctx, o, logger, !c.NoMouse)
}

func runTUI(ctx context.Context, o *poller.Orchestrator, logger *slog.Logger, mouse bool) error {
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}

	var filter *input.Filter
	if mouse {
		filter = input.NewFilter(os.Stdin, input.NewDecoder(time.Now))
		opts = append(opts, tea.WithInput(filter))
	}

	p := tea.NewProgram(tui.NewModel(ctx, o, logger), opts...)

	if filter != nil {
		filter.OnEvents(func(events []input.Event) {
			p.Send(tui.MouseMsg(events))
		})
		fmt.Fprint(os.Stdout, input.EnableMouse)
		defer fmt.Fprint(os.Stdout, input.DisableMouse)
	}

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// flagConfig layers --refresh over the config file without persisting it when
// the repo list is saved.
type flagConfig struct {
	config.File
	refresh int
	stored  int
}

func (c *flagConfig) Load() (*config.Config, error) {
	cfg, err := c.File.Load()
	if err != nil {
		return nil, err
	}
	c.stored = cfg.RefreshSeconds
	if c.refresh > 0 {
		cfg.RefreshSeconds = c.refresh
	}
	return cfg, nil
}

func (c *flagConfig) Save(cfg *config.Config) error {
	next := *cfg
	if c.refresh > 0 {
		next.RefreshSeconds = c.stored
	}
	return c.File.Save(&next)
}
