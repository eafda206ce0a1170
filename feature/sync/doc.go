// Package sync implements the device reconciliation engine. It compares
// the authentication status of locally known devices against their twin
// state at the configured hub providers and issues the corrective calls
// that converge the two: pruning unknown devices, provisioning missing
// twins and flipping twin statuses.
//
// The engine is invoked from the sync command, works through tenants
// sequentially and through each tenant's devices in fixed-size batches,
// and produces a Report that maps onto the process exit code.
package sync
