// circled - device-local service daemon for the Circle app.
//
// The daemon tracks OS permission status with an append-only consent
// log, orchestrates verification proofs, mirrors daily health metrics,
// runs the startup permission flow, and serves theme state. Client
// tools talk to it over a unix socket (see circlectl).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"circled/internal/analytics"
	"circled/internal/attest"
	"circled/internal/config"
	"circled/internal/events"
	"circled/internal/health"
	"circled/internal/healthdata"
	"circled/internal/ipc"
	"circled/internal/logging"
	"circled/internal/metrics"
	"circled/internal/onboarding"
	"circled/internal/permissions"
	"circled/internal/proof"
	"circled/internal/store"
	"circled/internal/theme"
)

const version = "1.0.0"

// appID identifies the daemon to the desktop permission store.
const appID = "app.circle.daemon"

var (
	configPath  = flag.String("config", "", "path to config file")
	validate    = flag.Bool("validate", false, "validate the config file and exit")
	showVersion = flag.Bool("version", false, "print version and exit")
	detach      = flag.Bool("detach", false, "run detached in the background")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("circled %s\n", version)
		return
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	if *validate {
		if err := validateConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "circled: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("config ok")
		return
	}

	if *detach {
		if err := spawnDetached(path); err != nil {
			fmt.Fprintf(os.Stderr, "circled: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(path); err != nil {
		fmt.Fprintf(os.Stderr, "circled: %v\n", err)
		os.Exit(1)
	}
}

func validateConfig(path string) error {
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// spawnDetached re-execs the daemon without the -detach flag in its own
// session.
func spawnDetached(path string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cmd := exec.Command(exe, "-config", path)
	cmd.SysProcAttr = getDaemonSysProcAttr()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}
	fmt.Printf("circled started (pid %d)\n", cmd.Process.Pid)
	return nil
}

func run(path string) error {
	startTime := time.Now()

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	log := logger.Component("daemon")
	log.Info("circled starting", "version", version, "config", path)

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bus := events.NewBus()
	m := metrics.NewCircledMetrics(nil)

	sink, err := analytics.NewSink(cfg.Analytics.FilePath, cfg.Analytics.Enabled)
	if err != nil {
		return fmt.Errorf("open analytics sink: %w", err)
	}
	defer sink.Close()

	// Permission registry and poller.
	reg := permissions.NewRegistry(st, bus, sink, m, logger.Component("permissions"),
		cfg.App.Version, cfg.Permissions.ConsentLoadLimit)
	for typ, provider := range permissions.PlatformProviders(appID, log) {
		reg.Register(typ, provider)
	}
	poller := permissions.NewPoller(reg,
		time.Duration(cfg.Permissions.PollIntervalSec)*time.Second, m, logger.Component("poller"))

	// Health data gateway.
	gateway := healthdata.NewGateway(healthdata.NewSimulatedProvider(), st,
		logger.Component("healthdata"), m)

	// Proof orchestration.
	var attestor attest.Attestor
	if cfg.Proof.Attest {
		attestor = attest.New(logger.Component("attest"))
		defer attestor.Close()
	}
	orch := proof.NewOrchestrator(st, bus, sink, m, logger.Component("proof"),
		proof.NewSimulatedCapturer(200*time.Millisecond),
		proof.NewSimulatedVerifier(time.Duration(cfg.Proof.VerifyLatencyMs)*time.Millisecond),
		attestor,
		proof.Options{
			OwnerUserID:   cfg.App.UserID,
			CaptureBudget: time.Duration(cfg.Proof.CaptureSeconds) * time.Second,
			Retention:     time.Duration(cfg.Proof.RetentionDays) * 24 * time.Hour,
		})

	// Theme registry.
	themeReg := theme.NewRegistry(st, bus, sink, logger.Component("theme"),
		theme.Theme(cfg.Theme.Default), cfg.Theme.Accent)

	flow := onboarding.NewFlow(reg, st, bus, sink, logger.Component("onboarding"))

	// Health checker.
	checker := health.NewChecker()
	checker.RegisterFunc("store", true, health.DatabaseCheck(st.Ping))
	checker.RegisterFunc("permissions", false, health.ManagerErrorCheck(reg.LastError))
	checker.RegisterFunc("proof", false, health.ManagerErrorCheck(orch.LastError))
	checker.RegisterFunc("healthdata", false, health.ManagerErrorCheck(gateway.LastError))
	checker.RegisterFunc("proof_backlog", false,
		health.InflightCheck(func() int { return len(orch.InflightSessions()) }, 16))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup permission flow, headless: walk every step.
	if flow.ShouldRun(ctx) {
		if err := flow.Start(ctx); err != nil {
			log.Warn("onboarding start failed", "error", err)
		} else {
			for {
				_, done, err := flow.Advance(ctx)
				if err != nil {
					log.Warn("onboarding step failed", "error", err)
					break
				}
				if done {
					break
				}
			}
		}
	}

	gateway.RequestAuthorization(ctx)
	if _, err := gateway.RefreshAll(ctx); err != nil {
		log.Warn("initial health refresh failed", "error", err)
	}

	// The daemon starts foregrounded; IPC background/foreground
	// messages flip the poller afterwards.
	poller.Start()
	defer poller.Stop()

	if _, err := orch.CleanupExpired(); err != nil {
		log.Warn("startup proof cleanup failed", "error", err)
	}
	go cleanupLoop(ctx, orch)

	// Metrics and probe endpoint.
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Registry().HTTPHandler())
		mux.Handle("/healthz", checker.HealthHandler())
		mux.Handle("/livez", checker.LivenessHandler())
		mux.Handle("/readyz", checker.ReadinessHandler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	// Control socket.
	srv := ipc.NewServer(cfg.IPC.SocketPath, logger.Component("ipc"))
	registerIPCHandlers(srv, &daemonState{
		startTime: startTime,
		checker:   checker,
		registry:  reg,
		poller:    poller,
		orch:      orch,
		gateway:   gateway,
		themeReg:  themeReg,
		flow:      flow,
	})
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()

	// Hot config reload for log level changes and the like.
	loader.OnChange(func(updated *config.Config) {
		log.Info("config reloaded", "log_level", updated.Logging.Level)
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch unavailable", "error", err)
	}
	defer loader.Close()

	checker.SetReady(true)
	log.Info("circled ready")

	<-ctx.Done()
	log.Info("circled shutting down")

	checker.SetReady(false)
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	return nil
}

// cleanupLoop deletes expired proofs periodically.
func cleanupLoop(ctx context.Context, orch *proof.Orchestrator) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			orch.CleanupExpired()
		}
	}
}
