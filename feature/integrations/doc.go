// Package integrations implements the integration registry: per tenant, the
// set of configured hub-provider connections (provider type + credentials).
//
// Integrations are registered through the management API, which assigns the
// integration id referenced by device records. The sync engine resolves a
// tenant's integrations at the start of every run; a tenant without any is
// skipped, not failed.
package integrations
