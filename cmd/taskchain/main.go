package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/db"
	"github.com/lisanmuaddib/taskchain/pkg/logging"
	"github.com/lisanmuaddib/taskchain/pkg/ratelimit"
	"github.com/lisanmuaddib/taskchain/pkg/services"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Only log warning since .env is optional
		logrus.WithError(err).Warn("Error loading .env file")
	}

	log, err := logging.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create logger")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	walletConfig, err := wallet.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to create wallet config")
	}
	// Override logger to use our main logger
	walletConfig.Logger = log

	deploymentFile := os.Getenv("DEPLOYMENT_FILE")
	if deploymentFile == "" {
		deploymentFile = "deployments.json"
	}
	registry, err := contracts.LoadDeployment(deploymentFile)
	if err != nil {
		log.WithError(err).WithField("file", deploymentFile).Fatal("Failed to load contract deployment")
	}

	var (
		ledger *db.Ledger
		opts   []wallet.ClientOption
	)
	if enabled, _ := strconv.ParseBool(os.Getenv("LEDGER_ENABLED")); enabled {
		conn, err := db.SetupDatabase(log, db.NewConfigFromEnv())
		if err != nil {
			log.WithError(err).Fatal("Failed to set up submission ledger")
		}
		ledger = db.NewLedger(conn, log)
		opts = append(opts, wallet.WithLedger(ledger))
	}

	client, err := wallet.NewClient(ctx, *walletConfig, registry, opts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create chain client")
	}
	defer client.Close()

	limitConfig := ratelimit.DefaultConfig()
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		perMinute, err := strconv.Atoi(v)
		if err != nil {
			log.WithError(err).Fatal("Invalid RATE_LIMIT_PER_MINUTE")
		}
		limitConfig.Limit = perMinute
	}
	limiter, err := ratelimit.NewStore(limitConfig, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create rate limiter")
	}

	deps := services.Deps{Chain: client, Limiter: limiter, Logger: log}
	var pending services.PendingLedger
	if ledger != nil {
		pending = ledger
	}
	utility := services.NewUtilityService(deps, client, pending)

	for name, resp := range map[string]services.Response{
		"health":    utility.Health(ctx),
		"fee_quote": utility.FeeQuote(ctx),
	} {
		entry := log.WithFields(logrus.Fields{"check": name, "status": resp.Status})
		if !resp.Success {
			entry.WithField("error", resp.Error.Message).Fatal("Startup check failed")
		}
		entry.WithField("data", resp.Data).Info("Startup check passed")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	if ledger == nil {
		log.Info("Submission ledger disabled, nothing to reconcile")
		<-ctx.Done()
	} else {
		schedule, err := schedulerConfigFromEnv()
		if err != nil {
			log.WithError(err).Fatal("Invalid reconciliation schedule")
		}
		runReconciler(ctx, log, utility, schedule)
	}

	log.Info("Shutdown complete")
}
