// Package devices implements the local device inventory: persisted records
// keyed by (tenant_id, device_id) carrying the integration associations.
//
// The store exposes paged, stably ordered listing and integration-id
// bookkeeping updates but no delete; the sync engine never removes local
// records.
package devices
