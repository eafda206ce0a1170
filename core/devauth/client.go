package devauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mendersoftware/iot-manager/core/rest"
)

// Status is the authentication status of a device as reported by the
// device-authentication service.
type Status string

const (
	// StatusAccepted means the device's authentication set is accepted.
	StatusAccepted Status = "accepted"
	// StatusRejected means the device's authentication set is rejected.
	StatusRejected Status = "rejected"
	// StatusNoAuth means the service holds no record for the device.
	// Devices missing from the service response map to this status.
	StatusNoAuth Status = "noauth"
)

const (
	uriInternalTenantDevices = "/api/internal/v1/devauth/tenants/%s/devices"

	// perPage caps the id list per request; device batches larger than
	// this are split across requests.
	perPage = 100
)

// Client fetches per-device authentication statuses for a tenant.
type Client interface {
	// GetDeviceStatuses returns the status for every requested device id.
	// Devices unknown to the service are reported as StatusNoAuth.
	GetDeviceStatuses(ctx context.Context, tenantID string, deviceIDs []string) (map[string]Status, error)
}

type client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a device-authentication client from the configuration.
func NewClient(cfg Config) Client {
	return &client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		http:    rest.NewClient(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
}

type deviceStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *client) GetDeviceStatuses(
	ctx context.Context,
	tenantID string,
	deviceIDs []string,
) (map[string]Status, error) {
	statuses := make(map[string]Status, len(deviceIDs))
	for _, id := range deviceIDs {
		statuses[id] = StatusNoAuth
	}

	for off := 0; off < len(deviceIDs); off += perPage {
		end := off + perPage
		if end > len(deviceIDs) {
			end = len(deviceIDs)
		}
		if err := c.fetchPage(ctx, tenantID, deviceIDs[off:end], statuses); err != nil {
			return nil, err
		}
	}
	return statuses, nil
}

func (c *client) fetchPage(
	ctx context.Context,
	tenantID string,
	deviceIDs []string,
	statuses map[string]Status,
) error {
	q := url.Values{}
	for _, id := range deviceIDs {
		q.Add("id", id)
	}
	q.Set("per_page", strconv.Itoa(perPage))

	uri := c.baseURL + fmt.Sprintf(uriInternalTenantDevices, url.PathEscape(tenantID)) +
		"?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("devauth: failed to prepare request: %w", err)
	}

	rsp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("devauth: %w", rest.WrapTransport(err))
	}
	defer rsp.Body.Close()

	if rsp.StatusCode >= 400 {
		return fmt.Errorf("devauth: %w", rest.HTTPError{Code: rsp.StatusCode})
	}

	var devices []deviceStatus
	if err := json.NewDecoder(rsp.Body).Decode(&devices); err != nil {
		return fmt.Errorf("devauth: failed to decode response: %w", err)
	}
	for _, dev := range devices {
		if _, requested := statuses[dev.ID]; !requested {
			continue
		}
		switch Status(dev.Status) {
		case StatusAccepted:
			statuses[dev.ID] = StatusAccepted
		case StatusRejected:
			statuses[dev.ID] = StatusRejected
		default:
			// pending and friends carry no hub entitlement
			statuses[dev.ID] = StatusNoAuth
		}
	}
	return nil
}
