package mocks

import (
	"context"

	"github.com/mendersoftware/iot-manager/core/devauth"

	"github.com/stretchr/testify/mock"
)

// Client is a mock implementation of devauth.Client
type Client struct {
	mock.Mock
}

func (m *Client) GetDeviceStatuses(ctx context.Context, tenantID string, deviceIDs []string) (map[string]devauth.Status, error) {
	args := m.Called(ctx, tenantID, deviceIDs)
	if statuses, ok := args.Get(0).(map[string]devauth.Status); ok {
		return statuses, args.Error(1)
	}
	return nil, args.Error(1)
}
