package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/services"
)

const (
	// DefaultReconcileInterval is the default duration between reconciliation passes
	DefaultReconcileInterval = time.Minute

	// MinReconcileInterval keeps passes from hammering the node
	MinReconcileInterval = 10 * time.Second
	MaxReconcileInterval = time.Hour

	defaultReconcileBatch = 50
)

// SchedulerConfig controls the background reconciliation of the ledger.
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// schedulerConfigFromEnv reads RECONCILE_INTERVAL and RECONCILE_BATCH.
func schedulerConfigFromEnv() (SchedulerConfig, error) {
	config := SchedulerConfig{
		Interval:  DefaultReconcileInterval,
		BatchSize: defaultReconcileBatch,
	}

	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return config, fmt.Errorf("invalid RECONCILE_INTERVAL %q: %w", v, err)
		}
		config.Interval = interval
	}
	if config.Interval < MinReconcileInterval || config.Interval > MaxReconcileInterval {
		return config, fmt.Errorf("reconcile interval must be between %v and %v", MinReconcileInterval, MaxReconcileInterval)
	}

	if v := os.Getenv("RECONCILE_BATCH"); v != "" {
		batch, err := strconv.Atoi(v)
		if err != nil || batch <= 0 {
			return config, fmt.Errorf("invalid RECONCILE_BATCH %q", v)
		}
		config.BatchSize = batch
	}
	return config, nil
}

// runReconciler reconciles pending submissions on every tick until ctx is done.
func runReconciler(ctx context.Context, log *logrus.Logger, utility *services.UtilityService, config SchedulerConfig) {
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	log.WithFields(logrus.Fields{
		"interval": config.Interval.String(),
		"batch":    config.BatchSize,
	}).Info("Starting ledger reconciliation")

	for {
		resp := utility.ReconcilePending(ctx, config.BatchSize)
		if !resp.Success && resp.Error != nil {
			log.WithFields(logrus.Fields{
				"status": resp.Status,
				"kind":   resp.Error.Kind,
				"error":  resp.Error.Message,
			}).Warn("Reconciliation pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
