package iothub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mendersoftware/iot-manager/core/rest"
)

const (
	uriDevices   = "/devices"
	uriQueryTwin = uriDevices + "/query"

	hdrKeyContentType = "Content-Type"
	hdrKeyContToken   = "X-Ms-Continuation"
	hdrKeyCount       = "X-Ms-Max-Item-Count"

	// https://docs.microsoft.com/en-us/rest/api/iothub/service/devices
	apiVersion = "2021-04-12"

	queryPageSize = 100

	defaultTTL = time.Minute
)

func uriDevice(id string) string {
	return uriDevices + "/" + url.PathEscape(id)
}

// Client is the capability interface over device twins at the hub provider.
// One implementation exists per provider; the sync engine selects it via
// the Integration's provider field.
type Client interface {
	// GetDeviceTwins returns the twin for every requested device id that
	// exists at the hub. Absent entries mean "no twin".
	GetDeviceTwins(ctx context.Context, cs *ConnectionString, deviceIDs []string) (map[string]DeviceTwin, error)

	// UpsertDevice creates the device with the given status, or updates
	// it in place when it already exists. It never fails destructively on
	// an existing device.
	UpsertDevice(ctx context.Context, cs *ConnectionString, deviceID string, status TwinStatus) (*Device, error)

	// UpdateDeviceStatus flips the device's status at the hub. A device
	// already holding the requested status is a no-op.
	UpdateDeviceStatus(ctx context.Context, cs *ConnectionString, deviceID string, status TwinStatus) error

	// DeleteDevice removes the device from the hub. Deleting a device
	// that does not exist is a no-op.
	DeleteDevice(ctx context.Context, cs *ConnectionString, deviceID string) error
}

type client struct {
	http *http.Client
}

// Options configures the client construction.
type Options struct {
	// Client overrides the outbound HTTP client.
	Client *http.Client
	// Timeout applies when no Client override is given.
	Timeout time.Duration
}

// NewClient creates an IoT Hub client.
func NewClient(opts ...Options) Client {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	httpClient := opt.Client
	if httpClient == nil {
		httpClient = rest.NewClient(opt.Timeout)
	}
	return &client{http: httpClient}
}

func (c *client) newRequestWithContext(
	ctx context.Context,
	cs *ConnectionString,
	method, urlPath string,
	body io.Reader,
) (*http.Request, error) {
	if err := cs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	hostname := cs.HostName
	if cs.GatewayHostName != "" {
		hostname = cs.GatewayHostName
	}
	uri := "https://" + hostname + "/" + strings.TrimPrefix(urlPath, "/")
	if strings.IndexRune(uri, '?') < 0 {
		uri += "?"
	} else {
		uri += "&"
	}
	uri += "api-version=" + apiVersion

	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set(hdrKeyContentType, "application/json")
	}
	// Sign for the configured hostname even when routed via a gateway.
	req.Host = cs.HostName

	expireAt := time.Now().Add(defaultTTL)
	if dl, ok := ctx.Deadline(); ok {
		expireAt = dl
	}
	req.Header.Set("Authorization", cs.Authorization(expireAt))
	return req, nil
}

func (c *client) GetDeviceTwins(
	ctx context.Context,
	cs *ConnectionString,
	deviceIDs []string,
) (map[string]DeviceTwin, error) {
	requested := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		requested[id] = struct{}{}
	}
	twins := make(map[string]DeviceTwin, len(deviceIDs))

	const sqlQuery = `{"query":"SELECT * FROM devices"}`
	continuation := ""
	for {
		req, err := c.newRequestWithContext(ctx, cs, http.MethodPost,
			uriQueryTwin, strings.NewReader(sqlQuery))
		if err != nil {
			return nil, fmt.Errorf("iothub: failed to prepare request: %w", err)
		}
		req.Header.Set(hdrKeyCount, fmt.Sprint(queryPageSize))
		if continuation != "" {
			req.Header.Set(hdrKeyContToken, continuation)
		}

		rsp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("iothub: %w", rest.WrapTransport(err))
		}
		var page []DeviceTwin
		err = decodeBody(rsp, &page)
		if err != nil {
			return nil, fmt.Errorf("iothub: failed to query device twins: %w", err)
		}
		for _, twin := range page {
			if _, ok := requested[twin.DeviceID]; ok {
				twins[twin.DeviceID] = twin
			}
		}

		continuation = rsp.Header.Get(hdrKeyContToken)
		if continuation == "" {
			break
		}
	}
	return twins, nil
}

func (c *client) UpsertDevice(
	ctx context.Context,
	cs *ConnectionString,
	deviceID string,
	status TwinStatus,
) (*Device, error) {
	dev := &Device{DeviceID: deviceID, Status: status}
	device, err := c.putDevice(ctx, cs, dev, false)
	if err == nil {
		return device, nil
	}

	// Conflict or precondition failure means the device already exists;
	// replace it unconditionally instead of failing the provision.
	var httpErr rest.HTTPError
	if errors.As(err, &httpErr) &&
		(httpErr.Code == http.StatusConflict || httpErr.Code == http.StatusPreconditionFailed) {
		return c.putDevice(ctx, cs, dev, true)
	}
	return nil, err
}

func (c *client) putDevice(
	ctx context.Context,
	cs *ConnectionString,
	dev *Device,
	replace bool,
) (*Device, error) {
	b, _ := json.Marshal(dev)
	req, err := c.newRequestWithContext(ctx, cs, http.MethodPut,
		uriDevice(dev.DeviceID), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("iothub: failed to prepare request: %w", err)
	}
	if replace {
		req.Header.Set("If-Match", `"*"`)
	}
	rsp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("iothub: %w", rest.WrapTransport(err))
	}
	updated := new(Device)
	if err := decodeBody(rsp, updated); err != nil {
		return nil, fmt.Errorf("iothub: failed to upsert device: %w", err)
	}
	return updated, nil
}

func (c *client) UpdateDeviceStatus(
	ctx context.Context,
	cs *ConnectionString,
	deviceID string,
	status TwinStatus,
) error {
	req, err := c.newRequestWithContext(ctx, cs, http.MethodGet, uriDevice(deviceID), nil)
	if err != nil {
		return fmt.Errorf("iothub: failed to prepare request: %w", err)
	}
	rsp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("iothub: %w", rest.WrapTransport(err))
	}
	dev := new(Device)
	if err := decodeBody(rsp, dev); err != nil {
		return fmt.Errorf("iothub: failed to retrieve device: %w", err)
	}
	if dev.Status == status {
		return nil
	}

	dev.Status = status
	if _, err := c.putDevice(ctx, cs, dev, true); err != nil {
		return fmt.Errorf("iothub: failed to update device status: %w", err)
	}
	return nil
}

func (c *client) DeleteDevice(
	ctx context.Context,
	cs *ConnectionString,
	deviceID string,
) error {
	req, err := c.newRequestWithContext(ctx, cs, http.MethodDelete, uriDevice(deviceID), nil)
	if err != nil {
		return fmt.Errorf("iothub: failed to prepare request: %w", err)
	}
	req.Header.Set("If-Match", "*")
	rsp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("iothub: %w", rest.WrapTransport(err))
	}
	defer rsp.Body.Close()
	// A twin that is already gone satisfies the delete.
	if rsp.StatusCode == http.StatusNotFound {
		return nil
	}
	if rsp.StatusCode >= 400 {
		return fmt.Errorf("iothub: failed to delete device: %w",
			rest.HTTPError{Code: rsp.StatusCode})
	}
	return nil
}

func decodeBody(rsp *http.Response, v interface{}) error {
	defer rsp.Body.Close()
	if rsp.StatusCode >= 400 {
		return rest.HTTPError{Code: rsp.StatusCode}
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(rsp.Body).Decode(v)
}
