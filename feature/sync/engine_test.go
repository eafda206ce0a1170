package sync_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mendersoftware/iot-manager/core/database"
	"github.com/mendersoftware/iot-manager/core/devauth"
	devauthmocks "github.com/mendersoftware/iot-manager/core/devauth/mocks"
	"github.com/mendersoftware/iot-manager/core/iothub"
	hubmocks "github.com/mendersoftware/iot-manager/core/iothub/mocks"
	"github.com/mendersoftware/iot-manager/core/rest"
	"github.com/mendersoftware/iot-manager/feature/devices"
	"github.com/mendersoftware/iot-manager/feature/integrations"
	"github.com/mendersoftware/iot-manager/feature/sync"
)

const (
	testTenant     = "tenant-1"
	testConnString = "HostName=hub.example.com;SharedAccessKeyName=sync;SharedAccessKey=c2VjcmV0"
)

type fixture struct {
	registry  *integrations.Service
	inventory *devices.Store
	auth      *devauthmocks.Client
	hub       *hubmocks.Client
	engine    *sync.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&devices.Device{}, &integrations.Integration{}))

	f := &fixture{
		registry:  integrations.NewService(integrations.NewStore(db), zap.NewNop()),
		inventory: devices.NewStore(db),
		auth:      new(devauthmocks.Client),
		hub:       new(hubmocks.Client),
	}
	f.engine = sync.NewEngine(f.registry, f.inventory, f.auth,
		map[integrations.Provider]iothub.Client{
			integrations.ProviderIoTHub: f.hub,
		},
		zap.NewNop(),
	)
	return f
}

func (f *fixture) addIntegration(t *testing.T, tenantID, connString string) string {
	t.Helper()
	in, err := f.registry.Register(context.Background(), integrations.Integration{
		TenantID: tenantID,
		Provider: integrations.ProviderIoTHub,
		Credentials: integrations.Credentials{
			Type:             integrations.CredentialTypeSAS,
			ConnectionString: connString,
		},
	})
	require.NoError(t, err)
	return in.ID
}

func (f *fixture) addDevice(t *testing.T, tenantID, deviceID string, integrationIDs ...string) {
	t.Helper()
	err := f.inventory.Create(context.Background(), &devices.Device{
		TenantID:       tenantID,
		DeviceID:       deviceID,
		IntegrationIDs: integrationIDs,
	})
	require.NoError(t, err)
}

// writeCalls lists the hub write operations issued so far, in call order.
func writeCalls(hub *hubmocks.Client) []string {
	var out []string
	for _, c := range hub.Calls {
		switch c.Method {
		case "DeleteDevice":
			out = append(out, "delete:"+c.Arguments.String(2))
		case "UpsertDevice":
			out = append(out, "create:"+c.Arguments.String(2))
		case "UpdateDeviceStatus":
			out = append(out, fmt.Sprintf("update:%s:%s",
				c.Arguments.String(2), c.Arguments.Get(3)))
		}
	}
	return out
}

// seedFleet sets up the ten-device fleet used by the reconciliation
// scenarios: five devices already consistent, two needing a status flip,
// one needing provisioning and two stale twins needing pruning.
func seedFleet(t *testing.T, f *fixture) string {
	integrationID := f.addIntegration(t, testTenant, testConnString)

	for _, id := range []string{
		"dev-01", "dev-02", "dev-04", "dev-05", "dev-06",
		"dev-07", "dev-08", "dev-09", "dev-10",
	} {
		f.addDevice(t, testTenant, id, integrationID)
	}
	// dev-03 is freshly accepted and not associated yet
	f.addDevice(t, testTenant, "dev-03")

	f.auth.On("GetDeviceStatuses", mock.Anything, testTenant, mock.Anything).
		Return(map[string]devauth.Status{
			"dev-01": devauth.StatusAccepted,
			"dev-02": devauth.StatusAccepted,
			"dev-03": devauth.StatusAccepted,
			"dev-04": devauth.StatusRejected,
			"dev-05": devauth.StatusRejected,
			"dev-06": devauth.StatusRejected,
			"dev-07": devauth.StatusNoAuth,
			"dev-08": devauth.StatusNoAuth,
			"dev-09": devauth.StatusNoAuth,
			"dev-10": devauth.StatusAccepted,
		}, nil)
	f.hub.On("GetDeviceTwins", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]iothub.DeviceTwin{
			"dev-01": {DeviceID: "dev-01", Status: iothub.StatusEnabled},
			"dev-02": {DeviceID: "dev-02", Status: iothub.StatusDisabled},
			"dev-04": {DeviceID: "dev-04", Status: iothub.StatusEnabled},
			"dev-05": {DeviceID: "dev-05", Status: iothub.StatusDisabled},
			"dev-07": {DeviceID: "dev-07", Status: iothub.StatusEnabled},
			"dev-08": {DeviceID: "dev-08", Status: iothub.StatusDisabled},
			"dev-10": {DeviceID: "dev-10", Status: iothub.StatusEnabled},
		}, nil)
	return integrationID
}

func TestEngineRunScenario(t *testing.T) {
	f := newFixture(t)
	integrationID := seedFleet(t, f)

	f.hub.On("DeleteDevice", mock.Anything, mock.Anything, "dev-07").Return(nil)
	f.hub.On("DeleteDevice", mock.Anything, mock.Anything, "dev-08").Return(nil)
	f.hub.On("UpsertDevice", mock.Anything, mock.Anything, "dev-03", iothub.StatusEnabled).
		Return(&iothub.Device{DeviceID: "dev-03", Status: iothub.StatusEnabled}, nil)
	f.hub.On("UpdateDeviceStatus", mock.Anything, mock.Anything, "dev-02", iothub.StatusEnabled).
		Return(nil)
	f.hub.On("UpdateDeviceStatus", mock.Anything, mock.Anything, "dev-04", iothub.StatusDisabled).
		Return(nil)

	report, err := f.engine.Run(context.Background(), sync.Params{
		Tenants:   []string{testTenant},
		BatchSize: 10,
	})
	require.NoError(t, err)

	require.Len(t, report.Tenants, 1)
	tr := report.Tenants[0]
	assert.True(t, tr.Completed)
	assert.False(t, tr.Aborted)
	assert.Equal(t, 5, tr.Consistent)
	assert.Equal(t, 5, tr.Corrected)
	assert.Empty(t, tr.Failures)
	assert.Equal(t, sync.ExitOK, report.ExitCode())

	// prunes first, then provisioning, then status updates, all in
	// device-id order
	assert.Equal(t, []string{
		"delete:dev-07",
		"delete:dev-08",
		"create:dev-03",
		"update:dev-02:enabled",
		"update:dev-04:disabled",
	}, writeCalls(f.hub))
	f.hub.AssertExpectations(t)

	// provisioning records the integration association
	dev, err := f.inventory.Get(context.Background(), testTenant, "dev-03")
	require.NoError(t, err)
	assert.True(t, dev.HasIntegration(integrationID))
}

func TestEngineRunBatchSizeInvariance(t *testing.T) {
	for _, batchSize := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("batch size %d", batchSize), func(t *testing.T) {
			f := newFixture(t)
			seedFleet(t, f)
			f.hub.On("DeleteDevice", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			f.hub.On("UpsertDevice", mock.Anything, mock.Anything, mock.Anything, iothub.StatusEnabled).
				Return(&iothub.Device{}, nil)
			f.hub.On("UpdateDeviceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(nil)

			report, err := f.engine.Run(context.Background(), sync.Params{
				Tenants:   []string{testTenant},
				BatchSize: batchSize,
			})
			require.NoError(t, err)
			assert.Equal(t, 5, report.Tenants[0].Consistent)
			assert.Equal(t, 5, report.Tenants[0].Corrected)
			assert.Equal(t, sync.ExitOK, report.ExitCode())

			calls := writeCalls(f.hub)
			sort.Strings(calls)
			assert.Equal(t, []string{
				"create:dev-03",
				"delete:dev-07",
				"delete:dev-08",
				"update:dev-02:enabled",
				"update:dev-04:disabled",
			}, calls)
		})
	}
}

func TestEngineRunConvergedFleet(t *testing.T) {
	// remote state after a successful run: a follow-up run must issue no
	// corrective calls
	f := newFixture(t)
	integrationID := f.addIntegration(t, testTenant, testConnString)
	for _, id := range []string{"dev-01", "dev-02", "dev-03", "dev-04"} {
		f.addDevice(t, testTenant, id, integrationID)
	}
	f.auth.On("GetDeviceStatuses", mock.Anything, testTenant, mock.Anything).
		Return(map[string]devauth.Status{
			"dev-01": devauth.StatusAccepted,
			"dev-02": devauth.StatusRejected,
			"dev-03": devauth.StatusNoAuth,
			"dev-04": devauth.StatusRejected,
		}, nil)
	// dev-03 was pruned, dev-04 never had a twin
	f.hub.On("GetDeviceTwins", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]iothub.DeviceTwin{
			"dev-01": {DeviceID: "dev-01", Status: iothub.StatusEnabled},
			"dev-02": {DeviceID: "dev-02", Status: iothub.StatusDisabled},
		}, nil)

	report, err := f.engine.Run(context.Background(), sync.Params{
		Tenants: []string{testTenant},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Tenants[0].Consistent)
	assert.Zero(t, report.Tenants[0].Corrected)
	assert.Equal(t, sync.ExitOK, report.ExitCode())
	assert.Empty(t, writeCalls(f.hub))
}

func TestEngineRunFailEarly(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newFixture(t)
		integrationID := f.addIntegration(t, testTenant, testConnString)
		statuses := make(map[string]devauth.Status, 5)
		twins := make(map[string]iothub.DeviceTwin, 5)
		for i := 1; i <= 5; i++ {
			id := fmt.Sprintf("dev-%02d", i)
			f.addDevice(t, testTenant, id, integrationID)
			statuses[id] = devauth.StatusAccepted
			twins[id] = iothub.DeviceTwin{DeviceID: id, Status: iothub.StatusDisabled}
		}
		f.auth.On("GetDeviceStatuses", mock.Anything, testTenant, mock.Anything).
			Return(statuses, nil)
		f.hub.On("GetDeviceTwins", mock.Anything, mock.Anything, mock.Anything).
			Return(twins, nil)
		// the third of five enable calls fails
		f.hub.On("UpdateDeviceStatus", mock.Anything, mock.Anything, "dev-03", iothub.StatusEnabled).
			Return(errors.New("twin update failed"))
		f.hub.On("UpdateDeviceStatus", mock.Anything, mock.Anything, mock.Anything, iothub.StatusEnabled).
			Return(nil)
		return f
	}

	t.Run("fail early stops after the failing action", func(t *testing.T) {
		f := setup(t)
		report, err := f.engine.Run(context.Background(), sync.Params{
			Tenants:   []string{testTenant},
			BatchSize: 10,
			FailEarly: true,
		})
		require.NoError(t, err)
		tr := report.Tenants[0]
		assert.Equal(t, 2, tr.Corrected)
		require.Len(t, tr.Failures, 1)
		assert.Equal(t, "dev-03", tr.Failures[0].DeviceID)
		assert.Equal(t, sync.ActionEnable, tr.Failures[0].Action)
		assert.False(t, tr.Completed)
		assert.Equal(t, sync.ExitPartial, report.ExitCode())
		assert.Len(t, writeCalls(f.hub), 3)
	})

	t.Run("default records the failure and continues", func(t *testing.T) {
		f := setup(t)
		report, err := f.engine.Run(context.Background(), sync.Params{
			Tenants:   []string{testTenant},
			BatchSize: 10,
		})
		require.NoError(t, err)
		tr := report.Tenants[0]
		assert.Equal(t, 4, tr.Corrected)
		require.Len(t, tr.Failures, 1)
		assert.True(t, tr.Completed)
		assert.Equal(t, sync.ExitPartial, report.ExitCode())
		assert.Len(t, writeCalls(f.hub), 5)
	})
}

func TestEngineRunTenantIsolation(t *testing.T) {
	// rejected hub credentials abort the tenant without spilling into the
	// next one
	f := newFixture(t)
	f.addIntegration(t, testTenant, testConnString)
	f.addIntegration(t, "tenant-2",
		"HostName=hub2.example.com;SharedAccessKeyName=sync;SharedAccessKey=c2VjcmV0")
	f.addDevice(t, testTenant, "dev-01")
	f.addDevice(t, "tenant-2", "dev-02")

	f.auth.On("GetDeviceStatuses", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]devauth.Status{
			"dev-01": devauth.StatusAccepted,
			"dev-02": devauth.StatusAccepted,
		}, nil)
	hub1 := mock.MatchedBy(func(cs *iothub.ConnectionString) bool {
		return cs.HostName == "hub.example.com"
	})
	f.hub.On("GetDeviceTwins", mock.Anything, hub1, mock.Anything).
		Return(nil, fmt.Errorf("%w: invalid signature", rest.ErrUnauthorized))
	f.hub.On("GetDeviceTwins", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]iothub.DeviceTwin{
			"dev-02": {DeviceID: "dev-02", Status: iothub.StatusEnabled},
		}, nil)

	report, err := f.engine.Run(context.Background(), sync.Params{
		Tenants: []string{testTenant, "tenant-2"},
	})
	require.NoError(t, err)
	require.Len(t, report.Tenants, 2)
	assert.True(t, report.Tenants[0].Aborted)
	assert.NotEmpty(t, report.Tenants[0].Reason)
	assert.False(t, report.Tenants[1].Aborted)
	assert.Equal(t, 1, report.Tenants[1].Consistent)
	assert.Equal(t, sync.ExitAborted, report.ExitCode())
}

func TestEngineRunNoIntegration(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, testTenant, "dev-01")

	report, err := f.engine.Run(context.Background(), sync.Params{
		Tenants: []string{testTenant},
	})
	require.NoError(t, err)
	require.Len(t, report.Tenants, 1)
	assert.True(t, report.Tenants[0].Skipped)
	assert.True(t, report.Tenants[0].Completed)
	assert.Equal(t, sync.ExitOK, report.ExitCode())
	f.auth.AssertNotCalled(t, "GetDeviceStatuses",
		mock.Anything, mock.Anything, mock.Anything)
}

func TestEngineRunAuthUnavailable(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(t, testTenant, testConnString)
	f.addDevice(t, testTenant, "dev-01")

	f.auth.On("GetDeviceStatuses", mock.Anything, testTenant, mock.Anything).
		Return(nil, fmt.Errorf("devauth: %w", rest.ErrUnavailable))
	f.hub.On("GetDeviceTwins", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]iothub.DeviceTwin{}, nil)

	report, err := f.engine.Run(context.Background(), sync.Params{
		Tenants: []string{testTenant},
	})
	require.NoError(t, err)
	require.Len(t, report.Tenants, 1)
	assert.True(t, report.Tenants[0].Aborted)
	assert.Equal(t, sync.ExitAborted, report.ExitCode())
	assert.Empty(t, writeCalls(f.hub))
}

func TestEngineRunCancellation(t *testing.T) {
	f := newFixture(t)
	integrationID := f.addIntegration(t, testTenant, testConnString)
	statuses := make(map[string]devauth.Status, 4)
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("dev-%02d", i)
		f.addDevice(t, testTenant, id, integrationID)
		statuses[id] = devauth.StatusAccepted
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.auth.On("GetDeviceStatuses", mock.Anything, testTenant, mock.Anything).
		Return(statuses, nil).
		Run(func(mock.Arguments) { cancel() })
	f.hub.On("GetDeviceTwins", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]iothub.DeviceTwin{}, nil)
	f.hub.On("UpsertDevice", mock.Anything, mock.Anything, mock.Anything, iothub.StatusEnabled).
		Return(&iothub.Device{}, nil)

	report, err := f.engine.Run(ctx, sync.Params{
		Tenants:   []string{testTenant},
		BatchSize: 2,
	})
	require.NoError(t, err)

	// the in-flight batch completes, the second is never fetched
	assert.True(t, report.Cancelled)
	require.Len(t, report.Tenants, 1)
	assert.False(t, report.Tenants[0].Completed)
	assert.Equal(t, 2, report.Tenants[0].Corrected)
	assert.Empty(t, report.Tenants[0].Failures)
	assert.Equal(t, sync.ExitAborted, report.ExitCode())
	f.auth.AssertNumberOfCalls(t, "GetDeviceStatuses", 1)
}
