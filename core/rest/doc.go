// Package rest holds the outbound HTTP plumbing shared by the remote
// service clients (device-authentication, IoT Hub).
//
// It defines the remote failure taxonomy used by the sync engine:
//
//   - ErrUnavailable: transient failures (connectivity, timeouts, 5xx).
//   - ErrUnauthorized: credential rejection (401/403), fatal per tenant.
//
// HTTPError values unwrap onto these sentinels, so callers only ever need
// errors.Is to decide between retry, abort-tenant and fail-device.
package rest
