// Package devauth implements the client for the device-authentication
// service, the source of truth for per-device authentication status.
//
// The sync engine queries statuses one batch at a time; each call returns a
// status for every requested device, with devices unknown to the service
// reported as StatusNoAuth. Failures follow the core/rest taxonomy.
package devauth
