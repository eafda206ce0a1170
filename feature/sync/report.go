package sync

import "time"

// Exit codes derived from a finished report.
const (
	ExitOK      = 0 // every attempted action succeeded
	ExitPartial = 1 // one or more per-device actions failed
	ExitAborted = 2 // at least one tenant aborted, or the run was cut short
)

// Action is the corrective operation issued against the hub for one device.
type Action string

const (
	ActionPrune     Action = "prune"
	ActionProvision Action = "provision"
	ActionEnable    Action = "enable"
	ActionDisable   Action = "disable"
)

// ActionFailure records one failed corrective action. Failures are
// independent per device; a failed action never masks the rest of the batch.
type ActionFailure struct {
	DeviceID      string `json:"device_id"`
	IntegrationID string `json:"integration_id"`
	Action        Action `json:"action"`
	Error         string `json:"error"`
}

// TenantReport summarizes a single tenant's run.
type TenantReport struct {
	TenantID   string          `json:"tenant_id"`
	Consistent int             `json:"consistent"`
	Corrected  int             `json:"corrected"`
	Skipped    bool            `json:"skipped,omitempty"`
	Aborted    bool            `json:"aborted,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Completed  bool            `json:"completed"`
	Failures   []ActionFailure `json:"failures,omitempty"`
}

// Report is the outcome of one Engine.Run. A cancelled or fail-early run
// still returns the report for everything completed so far; tenants never
// reached are simply absent.
type Report struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Cancelled  bool           `json:"cancelled,omitempty"`
	Tenants    []TenantReport `json:"tenants"`
}

// Failures counts the per-device action failures across all tenants.
func (r *Report) Failures() int {
	var n int
	for i := range r.Tenants {
		n += len(r.Tenants[i].Failures)
	}
	return n
}

// ExitCode maps the report onto the process exit code. Aborted tenants and
// cancelled runs dominate partial action failures.
func (r *Report) ExitCode() int {
	code := ExitOK
	for i := range r.Tenants {
		if r.Tenants[i].Aborted {
			return ExitAborted
		}
		if len(r.Tenants[i].Failures) > 0 {
			code = ExitPartial
		}
	}
	if r.Cancelled {
		return ExitAborted
	}
	return code
}
