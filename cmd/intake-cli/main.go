// Package main runs the intake wizard in the terminal against a local session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
	"github.com/drfirst/go-intake/internal/tui"
)

func main() {
	catalogFile := flag.String("catalog", "", "Catalog YAML file (default: built-in catalog)")
	submitDelay := flag.Duration("submit-delay", intake.DefaultSubmitDelay, "Simulated order processing time")
	strict := flag.Bool("strict-pricing", false, "Refuse products without a list price")
	logFile := flag.String("log", "", "Write logs to this file (the terminal is used by the wizard)")
	flag.Parse()

	logger, err := newLogger(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	repo := catalog.NewStaticRepository()
	if *catalogFile != "" {
		if repo, err = catalog.NewStaticRepositoryFromFile(*catalogFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	snap, err := repo.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
		os.Exit(1)
	}

	policy := pricing.DefaultPolicy()
	policy.Strict = *strict

	store := intake.NewStore(
		intake.NewReducer(intake.DefaultTable(), snap, policy),
		intake.Deps{Submitter: intake.DelaySubmitter{Delay: *submitDelay}, Logger: logger},
		intake.DefaultStoreConfig(),
		logger,
	)
	ctrl := store.Create()
	logger.Info("intake started", zap.String("session_id", ctrl.ID()))

	wizard := tui.NewWizard(ctx, ctrl)
	if _, err := tea.NewProgram(wizard, tea.WithContext(ctx)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("intake finished",
		zap.String("session_id", ctrl.ID()),
		zap.String("outcome", string(wizard.Outcome())),
		zap.Bool("cancelled", wizard.Cancelled()))

	switch {
	case wizard.Cancelled():
		os.Exit(130)
	case wizard.Outcome() == intake.OutcomeRejected:
		os.Exit(2)
	}
}

func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
