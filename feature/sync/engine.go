package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mendersoftware/iot-manager/core/devauth"
	"github.com/mendersoftware/iot-manager/core/iothub"
	"github.com/mendersoftware/iot-manager/core/rest"
	"github.com/mendersoftware/iot-manager/feature/devices"
	"github.com/mendersoftware/iot-manager/feature/integrations"
)

const defaultBatchSize = 20

// Inventory is the slice of the device store the engine needs.
type Inventory interface {
	List(ctx context.Context, tenantID, integrationID string, offset, limit int) ([]devices.Device, error)
	UpsertIntegrationIDs(ctx context.Context, tenantID, deviceID string, integrationIDs []string) error
}

// Registry resolves the integrations configured per tenant.
type Registry interface {
	Resolve(ctx context.Context, tenantID string) ([]integrations.Integration, error)
	Tenants(ctx context.Context) ([]string, error)
}

// Params selects what one run covers. An empty Tenants list means every
// tenant with at least one integration.
type Params struct {
	Tenants   []string
	BatchSize int
	FailEarly bool
}

// Engine reconciles local device records against the remote auth service
// and provider hubs. Remote state is re-fetched every run; the engine
// keeps no cache between runs, so a run over an already consistent fleet
// issues no corrective calls.
type Engine struct {
	registry  Registry
	inventory Inventory
	auth      devauth.Client
	hubs      map[integrations.Provider]iothub.Client
	logger    *zap.Logger
}

// NewEngine wires the engine's dependencies. hubs maps each supported
// provider to its client; integrations with an unmapped provider are
// skipped with a warning.
func NewEngine(
	registry Registry,
	inventory Inventory,
	auth devauth.Client,
	hubs map[integrations.Provider]iothub.Client,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		registry:  registry,
		inventory: inventory,
		auth:      auth,
		hubs:      hubs,
		logger:    logger,
	}
}

// Run executes one reconciliation pass. Tenants are processed
// sequentially; a tenant abort never spills into the next tenant unless
// FailEarly is set. Cancellation is honored between batches: completed
// work stays in the report, remaining tenants are not attempted.
func (e *Engine) Run(ctx context.Context, p Params) (*Report, error) {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	tenants := p.Tenants
	if len(tenants) == 0 {
		var err error
		tenants, err = e.registry.Tenants(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tenants: %w", err)
		}
	}

	report := &Report{StartedAt: time.Now()}
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		tr := e.syncTenant(ctx, tenantID, batchSize, p.FailEarly)
		report.Tenants = append(report.Tenants, *tr)
		if p.FailEarly && (tr.Aborted || len(tr.Failures) > 0) {
			break
		}
		if !tr.Completed && ctx.Err() != nil {
			report.Cancelled = true
			break
		}
	}
	report.FinishedAt = time.Now()
	return report, nil
}

// target is one integration prepared for a batch: provider client, parsed
// credentials and the twins fetched for the current batch.
type target struct {
	integration integrations.Integration
	hub         iothub.Client
	cs          *iothub.ConnectionString
	twins       map[string]iothub.DeviceTwin
}

func (e *Engine) syncTenant(
	ctx context.Context,
	tenantID string,
	batchSize int,
	failEarly bool,
) *TenantReport {
	tr := &TenantReport{TenantID: tenantID}
	log := e.logger.With(zap.String("tenant_id", tenantID))

	configured, err := e.registry.Resolve(ctx, tenantID)
	if errors.Is(err, integrations.ErrNoIntegrationConfigured) {
		log.Info("tenant has no integration configured, skipping")
		tr.Skipped = true
		tr.Completed = true
		return tr
	}
	if err != nil {
		tr.Aborted = true
		tr.Reason = fmt.Sprintf("failed to resolve integrations: %s", err)
		return tr
	}

	targets := make([]*target, 0, len(configured))
	for _, in := range configured {
		hub, ok := e.hubs[in.Provider]
		if !ok {
			log.Warn("no client for integration provider, skipping",
				zap.String("integration_id", in.ID),
				zap.String("provider", string(in.Provider)),
			)
			continue
		}
		cs, err := in.ConnectionString()
		if err != nil {
			tr.Aborted = true
			tr.Reason = fmt.Sprintf("integration %s: invalid credentials", in.ID)
			return tr
		}
		targets = append(targets, &target{integration: in, hub: hub, cs: cs})
	}
	if len(targets) == 0 {
		log.Info("tenant has no usable integration, skipping")
		tr.Skipped = true
		tr.Completed = true
		return tr
	}

	for offset := 0; ; offset += batchSize {
		if ctx.Err() != nil {
			// cancelled mid-tenant: report what completed so far
			return tr
		}
		batch, err := e.inventory.List(ctx, tenantID, "", offset, batchSize)
		if err != nil {
			tr.Aborted = true
			tr.Reason = fmt.Sprintf("failed to list devices: %s", err)
			return tr
		}
		if len(batch) == 0 {
			break
		}
		if stop := e.syncBatch(ctx, log, tr, targets, batch, failEarly); stop {
			return tr
		}
		if len(batch) < batchSize {
			break
		}
	}
	tr.Completed = true
	return tr
}

// syncBatch fetches the remote statuses for one page of devices, once per
// remote, then reconciles the page against every target integration. The
// returned flag stops the tenant.
func (e *Engine) syncBatch(
	ctx context.Context,
	log *zap.Logger,
	tr *TenantReport,
	targets []*target,
	batch []devices.Device,
	failEarly bool,
) bool {
	deviceIDs := make([]string, len(batch))
	for i := range batch {
		deviceIDs[i] = batch[i].DeviceID
	}

	// one auth fetch and one twin fetch per target, all concurrent
	var authStatuses map[string]devauth.Status
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		authStatuses, err = e.auth.GetDeviceStatuses(gctx, tr.TenantID, deviceIDs)
		return err
	})
	for _, t := range targets {
		t := t
		g.Go(func() error {
			twins, err := t.hub.GetDeviceTwins(gctx, t.cs, deviceIDs)
			if err != nil {
				return fmt.Errorf("integration %s: %w", t.integration.ID, err)
			}
			t.twins = twins
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tr.Aborted = true
		tr.Reason = fmt.Sprintf("failed to fetch device statuses: %s", err)
		log.Error("aborting tenant", zap.Error(err))
		return true
	}

	for _, t := range targets {
		if stop := e.reconcile(ctx, log, tr, t, batch, authStatuses, failEarly); stop {
			return true
		}
	}
	return false
}

// reconcile classifies one page of devices against one integration and
// issues the corrective actions: prunes first, then provisions, then
// status updates, each in device-id order.
func (e *Engine) reconcile(
	ctx context.Context,
	log *zap.Logger,
	tr *TenantReport,
	t *target,
	batch []devices.Device,
	authStatuses map[string]devauth.Status,
	failEarly bool,
) bool {
	type update struct {
		deviceID string
		action   Action
		status   iothub.TwinStatus
	}
	var (
		prunes     []string
		provisions []devices.Device
		updates    []update
	)
	// batch is in device-id order; the action groups inherit it
	for _, dev := range batch {
		twin, hasTwin := t.twins[dev.DeviceID]
		state := Classify(authStatuses[dev.DeviceID], twin.Status, hasTwin)
		switch state {
		case StateConsistentEnabled, StateConsistentDisabled:
			tr.Consistent++
		case StatePruneCandidate:
			// prune removes the hub twin only; with no twin there is
			// nothing left to correct
			if hasTwin {
				prunes = append(prunes, dev.DeviceID)
			} else {
				tr.Consistent++
			}
		case StateNeedsProvision:
			provisions = append(provisions, dev)
		case StateNeedsEnable:
			updates = append(updates, update{dev.DeviceID, ActionEnable, iothub.StatusEnabled})
		case StateNeedsDisable:
			updates = append(updates, update{dev.DeviceID, ActionDisable, iothub.StatusDisabled})
		default:
			log.Warn("device state cannot be classified, skipping",
				zap.String("device_id", dev.DeviceID),
				zap.String("twin_status", string(twin.Status)),
			)
		}
	}

	for _, id := range prunes {
		err := t.hub.DeleteDevice(ctx, t.cs, id)
		if stop := e.record(log, tr, t, id, ActionPrune, err, failEarly); stop {
			return true
		}
	}
	for _, dev := range provisions {
		_, err := t.hub.UpsertDevice(ctx, t.cs, dev.DeviceID, iothub.StatusEnabled)
		if stop := e.record(log, tr, t, dev.DeviceID, ActionProvision, err, failEarly); stop {
			return true
		}
		if err == nil && !dev.HasIntegration(t.integration.ID) {
			ids := append(dev.IntegrationIDs, t.integration.ID)
			err = e.inventory.UpsertIntegrationIDs(ctx, tr.TenantID, dev.DeviceID, ids)
			if err != nil {
				// the twin exists; the association catches up next run
				log.Error("failed to record device integration",
					zap.String("device_id", dev.DeviceID),
					zap.Error(err),
				)
			}
		}
	}
	for _, u := range updates {
		err := t.hub.UpdateDeviceStatus(ctx, t.cs, u.deviceID, u.status)
		if stop := e.record(log, tr, t, u.deviceID, u.action, err, failEarly); stop {
			return true
		}
	}
	return false
}

// record accounts for the outcome of one corrective action. An
// authorization failure aborts the tenant; any failure stops the run when
// failEarly is set.
func (e *Engine) record(
	log *zap.Logger,
	tr *TenantReport,
	t *target,
	deviceID string,
	action Action,
	err error,
	failEarly bool,
) bool {
	if err == nil {
		tr.Corrected++
		log.Info("device corrected",
			zap.String("device_id", deviceID),
			zap.String("integration_id", t.integration.ID),
			zap.String("action", string(action)),
		)
		return false
	}
	tr.Failures = append(tr.Failures, ActionFailure{
		DeviceID:      deviceID,
		IntegrationID: t.integration.ID,
		Action:        action,
		Error:         err.Error(),
	})
	log.Error("device action failed",
		zap.String("device_id", deviceID),
		zap.String("integration_id", t.integration.ID),
		zap.String("action", string(action)),
		zap.Error(err),
	)
	if errors.Is(err, rest.ErrUnauthorized) {
		tr.Aborted = true
		tr.Reason = fmt.Sprintf("integration %s: credentials rejected", t.integration.ID)
		return true
	}
	return failEarly
}
