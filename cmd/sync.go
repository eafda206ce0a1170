package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mendersoftware/iot-manager/core/config"
	"github.com/mendersoftware/iot-manager/core/database"
	"github.com/mendersoftware/iot-manager/core/devauth"
	"github.com/mendersoftware/iot-manager/core/iothub"
	"github.com/mendersoftware/iot-manager/core/logger"
	"github.com/mendersoftware/iot-manager/core/storage"
	"github.com/mendersoftware/iot-manager/feature/devices"
	"github.com/mendersoftware/iot-manager/feature/integrations"
	"github.com/mendersoftware/iot-manager/feature/sync"
)

var (
	// Flags for the sync command
	syncTenants   []string
	syncBatchSize int
	syncFailEarly bool
)

// syncCmd runs one device reconciliation pass.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile device state against hub providers",
	Long: `Reconcile local device records against the device-authentication
service and the configured hub providers.

Devices with no authentication record are pruned from the hub, accepted
devices without a twin are provisioned, and twins whose status disagrees
with the authentication status are flipped.

Exit codes: 0 when every action succeeded, 1 when one or more per-device
actions failed, 2 when a tenant aborted or the run was interrupted.

Examples:
  # Reconcile every tenant with an integration
  iot-manager sync

  # Reconcile selected tenants, stopping at the first failure
  iot-manager sync --tenant tenant-1 --tenant tenant-2 --fail-early`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringArrayVar(&syncTenants, "tenant", nil,
		"Tenant to reconcile (repeatable; default: all tenants with an integration)")
	syncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 0,
		"Devices per reconciliation batch (default: from configuration)")
	syncCmd.Flags().BoolVar(&syncFailEarly, "fail-early", false,
		"Abort the whole run on the first failing action")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	// Interrupt cancels between batches; completed work stays reported.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer l.Sync()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.VerifySchema(db, requiredSchema()); err != nil {
		return err
	}

	batchSize := syncBatchSize
	if batchSize <= 0 {
		batchSize = cfg.Sync.BatchSize
	}

	engine := sync.NewEngine(
		integrations.NewService(integrations.NewStore(db), l),
		devices.NewStore(db),
		devauth.NewClient(cfg.DevAuth),
		map[integrations.Provider]iothub.Client{
			integrations.ProviderIoTHub: iothub.NewClient(),
		},
		l,
	)

	l.Info("Starting device reconciliation",
		zap.Strings("tenants", syncTenants),
		zap.Int("batch_size", batchSize),
		zap.Bool("fail_early", syncFailEarly),
	)
	report, err := engine.Run(ctx, sync.Params{
		Tenants:   syncTenants,
		BatchSize: batchSize,
		FailEarly: syncFailEarly,
	})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	printSyncReport(l, report)

	if cfg.Storage.Enabled {
		if err := archiveSyncReport(l, cfg.Storage, report); err != nil {
			l.Error("Failed to archive report", zap.Error(err))
		}
	}

	switch code := report.ExitCode(); code {
	case sync.ExitOK:
		return nil
	case sync.ExitAborted:
		return &exitError{code: code, err: fmt.Errorf(
			"reconciliation aborted: %d tenants reported, %d action failures",
			len(report.Tenants), report.Failures())}
	default:
		return &exitError{code: code, err: fmt.Errorf(
			"reconciliation finished with %d action failures", report.Failures())}
	}
}

// printSyncReport logs the run outcome per tenant.
func printSyncReport(l *zap.Logger, report *sync.Report) {
	for _, tr := range report.Tenants {
		switch {
		case tr.Skipped:
			l.Info("Tenant skipped, no integration configured",
				zap.String("tenant_id", tr.TenantID))
		case tr.Aborted:
			l.Warn("Tenant aborted",
				zap.String("tenant_id", tr.TenantID),
				zap.String("reason", tr.Reason),
			)
		default:
			l.Info("Tenant reconciled",
				zap.String("tenant_id", tr.TenantID),
				zap.Int("consistent", tr.Consistent),
				zap.Int("corrected", tr.Corrected),
				zap.Int("failed", len(tr.Failures)),
				zap.Bool("completed", tr.Completed),
			)
		}
		for _, f := range tr.Failures {
			l.Warn("Device action failed",
				zap.String("tenant_id", tr.TenantID),
				zap.String("device_id", f.DeviceID),
				zap.String("integration_id", f.IntegrationID),
				zap.String("action", string(f.Action)),
				zap.String("error", f.Error),
			)
		}
	}
	l.Info("Reconciliation finished",
		zap.Int("tenants", len(report.Tenants)),
		zap.Int("failures", report.Failures()),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
}

// archiveSyncReport uploads the report for later inspection. Archiving is
// best effort and never changes the exit code.
func archiveSyncReport(l *zap.Logger, cfg storage.Config, report *sync.Report) error {
	client, err := storage.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	// uploads get a fresh deadline; the run context may already be
	// cancelled when archiving an interrupted run
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("reports/sync-%s.json",
		report.StartedAt.UTC().Format("20060102T150405"))
	if err := storage.ArchiveObject(ctx, client, cfg.Bucket, name, payload); err != nil {
		return err
	}
	l.Info("Report archived",
		zap.String("bucket", cfg.Bucket),
		zap.String("object", name),
	)
	return nil
}
