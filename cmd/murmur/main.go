package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dooshek/murmur/internal/alert"
	"github.com/dooshek/murmur/internal/analysis"
	"github.com/dooshek/murmur/internal/api"
	"github.com/dooshek/murmur/internal/audio"
	"github.com/dooshek/murmur/internal/config"
	"github.com/dooshek/murmur/internal/console"
	"github.com/dooshek/murmur/internal/dbus"
	"github.com/dooshek/murmur/internal/fileops"
	"github.com/dooshek/murmur/internal/keyboard"
	"github.com/dooshek/murmur/internal/logger"
	"github.com/dooshek/murmur/internal/metrics"
	"github.com/dooshek/murmur/internal/notification"
	"github.com/dooshek/murmur/internal/session"
	"github.com/dooshek/murmur/internal/stats"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

func init() {
	// Set custom usage message to show -- prefix
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(out, "  --%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if len(name) > 0 {
				fmt.Fprintf(out, " %s", name)
			}
			fmt.Fprintf(out, "\n    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %q)", f.DefValue)
			}
			fmt.Fprintf(out, "\n")
		})
	}
}

func main() {
	runWizard := flag.Bool("wizard", false, "Run the configuration wizard")
	logLevel := flag.String("log-level", "info", "Set log level (debug|info|warn|error)")
	logFilename := flag.String("log-filename", "", "Log to file instead of stdout")
	daemon := flag.Bool("daemon", false, "Wait for the hotkey, API or D-Bus instead of listening right away")
	baseURL := flag.String("base-url", "", "Analysis server URL (overrides config and MURMUR_BASE_URL)")
	flag.Parse()

	logger.SetLevel(*logLevel)
	if *logFilename != "" {
		if err := logger.SetOutputFile(*logFilename); err != nil {
			fmt.Printf("Error setting log file: %v\n", err)
			os.Exit(1)
		}
		defer logger.CloseLogFile()
	}

	if *runWizard {
		if err := config.RunWizard(); err != nil {
			logger.Error("Error running wizard", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Error loading config", err)
		os.Exit(1)
	}
	if cfg == nil {
		logger.Info("No configuration found. Running setup wizard...")
		if err := config.RunWizard(); err != nil {
			logger.Error("Error running wizard", err)
			os.Exit(1)
		}
		if cfg, err = config.LoadConfig(); err != nil || cfg == nil {
			logger.Error("Error loading config after wizard", err)
			os.Exit(1)
		}
	}

	if level := config.LoadEnv(cfg); level != "" && !isFlagSet("log-level") {
		logger.SetLevel(level)
	}
	if *baseURL != "" {
		cfg.Analysis.BaseURL = *baseURL
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", err)
		os.Exit(1)
	}

	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		logger.Error("Failed to initialize file operations", err)
		os.Exit(1)
	}
	if err := fileOps.EnsureDirectories(); err != nil {
		logger.Error("Failed to create necessary directories", err)
		os.Exit(1)
	}

	// Check if another instance is running
	if err := fileOps.CheckPID(); err != nil {
		if errors.Is(err, fileops.ErrProcessAlreadyRunning) {
			logger.Error("Another instance of murmur is already running", err)
			os.Exit(1)
		}
	}
	if err := fileOps.SavePID(); err != nil {
		logger.Error("Failed to save PID file", err)
		os.Exit(1)
	}
	defer cleanupPID(fileOps)

	if err := run(cfg, fileOps, *daemon); err != nil {
		logger.Error("murmur stopped with an error", err)
		// os.Exit skips deferred calls
		cleanupPID(fileOps)
		os.Exit(1)
	}
}

func run(cfg *config.Config, fileOps *fileops.DefaultFileOps, daemon bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var archive *audio.Archive
	if cfg.Audio.SaveRecordings {
		a, err := audio.NewArchive(fileOps.GetRecordingsDir(), cfg.Audio.SampleRate)
		if err != nil {
			return fmt.Errorf("failed to prepare recordings directory: %w", err)
		}
		archive = a
	}

	m := metrics.New("murmur")
	statsManager := stats.NewStatsManager(fileOps.GetStatsPath())

	ctrl := session.NewController(session.Options{
		Capture:        audio.NewMalgoCapture(cfg.Audio.SampleRate, archive),
		Service:        analysis.NewClient(cfg.Analysis.BaseURL, nil, cfg.Analysis.RequestTimeout),
		Notifier:       notification.New(cfg.Notifications.Backend),
		Gate:           alert.NewGate(cfg.Alerts.Threshold, cfg.Alerts.Cooldown),
		PollInterval:   cfg.Analysis.PollInterval,
		RequestTimeout: cfg.Analysis.RequestTimeout,
		MeterInterval:  cfg.Audio.MeteringInterval,
		Bars:           cfg.Visualizer.Bars,
		Urgency:        notification.ParseUrgency(cfg.Alerts.Urgency),
		Observer:       session.MultiObserver(m, statsManager),
	})

	if perm := ctrl.RequestNotificationPermission(ctx); perm != notification.Granted {
		logger.Warnf("Notifications are %s: risk alerts will only show in the console", perm)
	}

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go console.NewPrinter(os.Stdout).Run(ctx, updates)

	var apiServer *api.Server
	if cfg.API.Enabled {
		gin.SetMode(gin.ReleaseMode)
		apiServer = api.NewServer(ctrl, statsManager, m.Handler())
		if err := apiServer.Start(cfg.API.Listen); err != nil {
			return err
		}
	}

	var dbusServer *dbus.Server
	if cfg.DBus.Enabled {
		dbusServer = dbus.NewServer(ctrl, statsManager)
		if err := dbusServer.Start(); err != nil {
			logger.Warnf("D-Bus control unavailable: %v", err)
			dbusServer = nil
		}
	}

	if cfg.Hotkey.Enabled {
		monitor, err := keyboard.NewMonitor(cfg.Hotkey, func() {
			if _, err := ctrl.Toggle(); err != nil {
				logger.Error("Failed to toggle session", err)
			}
		})
		if err != nil {
			logger.Warnf("Hotkey disabled: %v", err)
		} else {
			go func() {
				if err := monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warnf("Hotkey monitor stopped: %v", err)
				}
			}()
		}
	}

	logger.Infof("🎧 murmur ready, analysis server at %s", cfg.Analysis.BaseURL)
	if !daemon {
		if err := ctrl.Start(); err != nil {
			logger.Error("Failed to start listening", err)
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	if err := ctrl.Stop(); err != nil {
		logger.Error("Failed to stop session", err)
	}
	if dbusServer != nil {
		dbusServer.Stop()
	}
	if apiServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down API", err)
		}
	}
	return nil
}

type pidCleaner interface {
	CleanupPID() error
}

func cleanupPID(f pidCleaner) bool {
	if err := f.CleanupPID(); err != nil {
		logger.Error("Failed to cleanup PID file", err)
		return false
	}
	return true
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
