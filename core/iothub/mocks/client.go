package mocks

import (
	"context"

	"github.com/mendersoftware/iot-manager/core/iothub"

	"github.com/stretchr/testify/mock"
)

// Client is a mock implementation of iothub.Client
type Client struct {
	mock.Mock
}

func (m *Client) GetDeviceTwins(ctx context.Context, cs *iothub.ConnectionString, deviceIDs []string) (map[string]iothub.DeviceTwin, error) {
	args := m.Called(ctx, cs, deviceIDs)
	if twins, ok := args.Get(0).(map[string]iothub.DeviceTwin); ok {
		return twins, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) UpsertDevice(ctx context.Context, cs *iothub.ConnectionString, deviceID string, status iothub.TwinStatus) (*iothub.Device, error) {
	args := m.Called(ctx, cs, deviceID, status)
	if dev, ok := args.Get(0).(*iothub.Device); ok {
		return dev, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) UpdateDeviceStatus(ctx context.Context, cs *iothub.ConnectionString, deviceID string, status iothub.TwinStatus) error {
	args := m.Called(ctx, cs, deviceID, status)
	return args.Error(0)
}

func (m *Client) DeleteDevice(ctx context.Context, cs *iothub.ConnectionString, deviceID string) error {
	args := m.Called(ctx, cs, deviceID)
	return args.Error(0)
}
