package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"NewsSmoke/pkg/browser"
	"NewsSmoke/pkg/config"
	"NewsSmoke/pkg/logger"
	"NewsSmoke/pkg/metrics"
	"NewsSmoke/pkg/scheduler"
	"NewsSmoke/pkg/sitecheck"
	"NewsSmoke/pkg/telegram"

	"github.com/charmbracelet/lipgloss"
)

const version = "1.0.0"

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func main() {
	os.Exit(run())
}

func run() int {
	// Flags
	configPath := flag.String("config", "", "Path to configuration file")
	devMode := flag.Bool("dev", false, "Visible browser with devtools, console logging, wait for Enter before closing")
	once := flag.Bool("once", false, "Run once even when a schedule is configured")
	install := flag.Bool("install", false, "Install the Playwright driver and Chromium, then exit")
	serversOnly := flag.Bool("servers-only", false, "Only probe the backend servers")
	skipServers := flag.Bool("skip-servers", false, "Skip the backend server probes")
	showVersion := flag.Bool("version", false, "Show version")
	showHelp := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *showHelp {
		printHelp()
		return 0
	}

	if *showVersion {
		fmt.Printf("NewsSmoke v%s\n", version)
		return 0
	}

	if *install {
		if err := browser.InstallDeps(consoleLogger()); err != nil {
			fmt.Println(errorStyle.Render("❌ " + err.Error()))
			return 1
		}
		fmt.Println(successStyle.Render("✅ Playwright is ready"))
		return 0
	}

	// Load configuration
	cfg, cfgPath, err := config.Load(*configPath)
	if err != nil {
		log.Printf("❌ Failed to load config: %v", err)
		return 1
	}
	if *devMode {
		cfg.DevMode = true
	}

	lg, err := logger.New(logger.Options{
		Path:    cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: cfg.DevMode,
	})
	if err != nil {
		log.Printf("❌ Failed to open log: %v", err)
		return 1
	}
	defer lg.Sync()
	if path := lg.Path(); path != "" {
		fmt.Println(mutedStyle.Render("📝 Logging to " + path))
	}

	if cfgPath == "" {
		lg.Info("No config file found, using defaults")
	} else {
		lg.Info("Loaded config from %s", cfgPath)
	}

	if !*serversOnly && !browser.CheckDeps() {
		fmt.Println(errorStyle.Render("⚠️  Playwright driver not found, run with -install first"))
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler: first SIGINT/SIGTERM cancels context, second force-exits
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Warn("Interrupted, finishing current check")
		cancel()
		<-sigCh
		os.Exit(1)
	}()

	var notifier sitecheck.Notifier
	if cfg.Telegram.Enabled {
		bot, err := telegram.NewBot(ctx, cfg.Telegram.BotToken, cfg.Telegram.ChatID, telegramOptions(cfg), lg)
		if err != nil {
			lg.Error("Telegram disabled: %v", err)
			fmt.Println(errorStyle.Render("⚠️  Telegram unavailable: " + err.Error()))
		} else if bot != nil {
			lg.Info("Telegram bot @%s connected, reporting to chat %d", bot.GetBotUsername(), bot.GetChatID())
			notifier = bot
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	opts := browserOptions(cfg)
	runner := sitecheck.NewRunner(cfg, func(ctx context.Context) (sitecheck.Page, error) {
		s, err := browser.Launch(ctx, opts, lg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, notifier, lg).
		WithMetrics(m).
		SkipServers(*skipServers)
	if cfg.DevMode {
		runner.BeforeClose(waitForEnter)
	}

	job := runner.Run
	if *serversOnly {
		job = runner.RunServers
	}

	if cfg.Schedule == "" || *once {
		rep := job(ctx)
		printResult(rep)
		if rep.Errors() > 0 {
			return 1
		}
		return 0
	}

	// Scheduled mode
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.ListenAddress, m, runner.Status, lg)
		go func() {
			if err := srv.Start(ctx); err != nil {
				lg.Error("Metrics server: %v", err)
			}
		}()
	}

	sched, err := scheduler.New(cfg.Timezone, func(ctx context.Context) {
		printResult(job(ctx))
	}, lg)
	if err != nil {
		lg.Error("Scheduler: %v", err)
		return 1
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("⏰ Scheduled with %q (%s), Ctrl+C to stop", cfg.Schedule, sched.Location())))
	if err := sched.Run(ctx, cfg.Schedule); err != nil {
		lg.Error("Scheduler: %v", err)
		return 1
	}

	fmt.Println("\n👋 Goodbye!")
	return 0
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless && !cfg.DevMode
	opts.Devtools = cfg.DevMode
	opts.DefaultTimeout = cfg.GetBrowserTimeout()
	opts.ViewportWidth = cfg.GetBrowserViewportW()
	opts.ViewportHeight = cfg.GetBrowserViewportH()
	opts.UserAgent = cfg.Browser.UserAgent
	if cfg.Browser.ScreenshotDir != "" {
		opts.ScreenshotDir = cfg.Browser.ScreenshotDir
	}
	return opts
}

func telegramOptions(cfg *config.Config) telegram.Options {
	opts := telegram.DefaultOptions()
	if cfg.Telegram.APIEndpoint != "" {
		opts.APIEndpoint = cfg.Telegram.APIEndpoint
	}
	if cfg.Telegram.RatePerSec > 0 {
		opts.RatePerSecond = cfg.Telegram.RatePerSec
	}
	return opts
}

func consoleLogger() *logger.Logger {
	lg, err := logger.New(logger.Options{Level: "INFO", Console: true})
	if err != nil {
		return logger.Nop()
	}
	return lg
}

func waitForEnter() {
	fmt.Print("Test finished. Press Enter to close the browser.")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
}

func printResult(rep *sitecheck.RunReport) {
	fmt.Println()
	for _, c := range rep.Checks {
		if c.OK() {
			fmt.Println(successStyle.Render("✅ "+c.Label()) + mutedStyle.Render(fmt.Sprintf("  %d items", c.Items)))
			continue
		}
		line := errorStyle.Render("❌ "+c.Label()) + "  " + c.Err.Error()
		if c.Screenshot != "" {
			line += mutedStyle.Render("  📷 " + c.Screenshot)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d passed, %d failed in %.1fs (run %s)\n",
		rep.Successes(), rep.Errors(), rep.Duration().Seconds(), rep.ID)
}

func printHelp() {
	fmt.Printf("NewsSmoke v%s - news site smoke test\n\n", version)
	fmt.Println("Usage: newssmoke [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (YAML or JSON)")
	fmt.Println("  -dev")
	fmt.Println("        Visible browser with devtools, wait for Enter before closing")
	fmt.Println("  -once")
	fmt.Println("        Run once and exit, ignoring the schedule")
	fmt.Println("  -install")
	fmt.Println("        Install the Playwright driver and Chromium")
	fmt.Println("  -servers-only")
	fmt.Println("        Only probe the backend servers")
	fmt.Println("  -skip-servers")
	fmt.Println("        Skip the backend server probes")
	fmt.Println("  -version")
	fmt.Println("        Show version")
	fmt.Println("  -help")
	fmt.Println("        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  TELEGRAM_BOT_TOKEN   Bot token (required when telegram is enabled)")
	fmt.Println("  TELEGRAM_CHAT_ID     Chat to report to")
	fmt.Println("  NEWSSMOKE_BASE_URL   Site under test (default: https://oxu.az)")
	fmt.Println("  NEWSSMOKE_SCHEDULE   Cron spec; empty runs once")
	fmt.Println("  LOG_LEVEL            DEBUG, INFO, WARN or ERROR")
	fmt.Println("  DEV_MODE             true to enable dev mode")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  newssmoke -install")
	fmt.Println("  newssmoke -dev -skip-servers")
	fmt.Println("  NEWSSMOKE_SCHEDULE='0 */2 * * *' newssmoke -config newssmoke.yaml")
}
