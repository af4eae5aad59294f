package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/example/visa-watch/internal/config"
	"github.com/example/visa-watch/internal/governor"
	"github.com/example/visa-watch/internal/journal"
	"github.com/example/visa-watch/internal/logbook"
	"github.com/example/visa-watch/internal/notify"
	"github.com/example/visa-watch/internal/orchestrator"
	"github.com/example/visa-watch/internal/portal"
	"github.com/example/visa-watch/internal/reschedule"
	"github.com/example/visa-watch/internal/sessionstore"
	"github.com/example/visa-watch/internal/webdriver"
)

// app holds the wired run: one browser session, one loop, and the
// resources that must be torn down when it ends.
type app struct {
	cfg    *config.Config
	book   *logbook.Logbook
	log    *slog.Logger
	driver *webdriver.Client
	jrn    *journal.Journal
	orch   *orchestrator.Orchestrator
}

// buildApp wires the full stack from the config file. singleShot forces a
// single iteration regardless of what the config says; dryRun likewise
// forces notify-only claims.
func buildApp(ctx context.Context, singleShot, dryRun bool) (*app, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}

	book := logbook.Open(cfg.Paths.LogDir)
	log := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, book), nil))

	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	cutoff, err := cfg.Cutoff()
	if err != nil {
		return nil, err
	}

	notifier, err := notify.New(cfg.Notify, log)
	if err != nil {
		return nil, err
	}

	driver, err := webdriver.Connect(ctx, webdriver.Options{
		HubAddress: cfg.WebDriver.HubAddress,
		Headless:   cfg.WebDriver.Headless,
		UserAgent:  cfg.WebDriver.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("webdriver: %w", err)
	}

	a := &app{cfg: cfg, book: book, log: log, driver: driver}

	pc := &portal.Client{
		D:          driver,
		Embassy:    cfg.Embassy(),
		ScheduleID: cfg.Account.ScheduleID,
		Email:      cfg.Account.Email,
		Password:   cfg.Account.Password,
		Log:        log,
		Tokens:     sessionstore.New(cfg.Paths.SessionFile, []byte(cfg.Account.Password)),
	}

	a.orch = &orchestrator.Orchestrator{
		Portal: pc,
		Claimer: &reschedule.Rescheduler{
			D:           driver,
			P:           pc,
			Notify:      notifier,
			Log:         log,
			UpdateCAS:   cfg.Target.UpdateCAS,
			CASOverride: cfg.Target.CASFacilityID,
			ArtifactDir: cfg.Paths.ArtifactDir,
		},
		Notifier: notifier,
		Diag:     driver,
		Gov: &governor.Governor{
			BanCooldown:  cfg.Timing.BanCooldown(),
			WorkLimit:    cfg.Timing.WorkLimit(),
			WorkCooldown: cfg.Timing.WorkCooldown(),
			Log:          log,
		},
		Log:           log,
		Window:        window,
		Cutoff:        cutoff,
		DryRun:        cfg.Run.DryRun || dryRun,
		SingleShot:    cfg.Run.SingleShot || singleShot,
		RetryLowerSec: cfg.Timing.RetryLowerSec,
		RetryUpperSec: cfg.Timing.RetryUpperSec,
	}

	if cfg.Journal.DatabaseURL != "" {
		jrn, err := journal.Open(ctx, cfg.Journal.DatabaseURL)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("journal: %w", err)
		}
		a.jrn = jrn
		a.orch.Recorder = jrn
	}

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.driver != nil {
		if err := a.driver.Quit(ctx); err != nil {
			a.log.Warn("browser session teardown failed", "err", err)
		}
	}
	if a.jrn != nil {
		a.jrn.Close()
	}
	if a.book != nil {
		_ = a.book.Close()
	}
}

// run executes the loop and prints the colored terminal status line.
func (a *app) run(ctx context.Context) (orchestrator.Status, error) {
	_ = a.book.Note("---- run started ----")
	status, err := a.orch.Run(ctx)
	statusColor(status).Fprintf(os.Stdout, "%s\n", status)
	return status, err
}

func statusColor(s orchestrator.Status) *color.Color {
	switch s {
	case orchestrator.StatusSuccess:
		return color.New(color.FgGreen, color.Bold)
	case orchestrator.StatusFound:
		return color.New(color.FgCyan)
	case orchestrator.StatusBan:
		return color.New(color.FgYellow)
	case orchestrator.StatusFail, orchestrator.StatusException:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.Reset)
	}
}
