// Package fleet holds the shared domain model for the update orchestrator:
// host records, operations, and the event stream emitted by a batch.
package fleet

import (
	"fmt"
	"time"
)

// AuthMethod selects how the SSH session authenticates.
type AuthMethod string

const (
	AuthKey      AuthMethod = "key"
	AuthPassword AuthMethod = "password"
)

// HostRecord is one managed host as stored in the registry.
// The orchestrator reads it and writes back check results only.
type HostRecord struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name" validate:"required"`
	Addr           string     `json:"addr" validate:"omitempty,hostaddr"`
	Port           int        `json:"port" validate:"gte=0,lte=65535"`
	User           string     `json:"user"`
	AuthMethod     AuthMethod `json:"auth_method" validate:"omitempty,oneof=key password"`
	KeyPath        string     `json:"key_path,omitempty"`
	Distro         string     `json:"distro,omitempty"`
	PendingUpdates *int       `json:"pending_updates,omitempty"`
	LastCheck      *time.Time `json:"last_check,omitempty"`
}

// DisplayName returns the host's name, or "id:<n>" when unnamed.
func (h HostRecord) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return fmt.Sprintf("id:%d", h.ID)
}

// Operation is one orchestration action applied across a batch of hosts.
type Operation string

const (
	OpCheck         Operation = "check"
	OpSimulate      Operation = "simulate"
	OpUpgrade       Operation = "upgrade"
	OpAutoremove    Operation = "autoremove"
	OpAutoremoveSim Operation = "autoremove-sim"
	OpReboot        Operation = "reboot"
)

// Streams reports whether the operation emits remote output line by line.
func (op Operation) Streams() bool {
	return op == OpUpgrade || op == OpAutoremove
}

// ParseOperation maps a verb, as typed on a command line, to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpCheck, OpSimulate, OpUpgrade, OpAutoremove, OpAutoremoveSim, OpReboot:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// Status of a finished per-host operation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// OperationResult is the terminal outcome of one operation on one host.
// It is immutable once emitted.
type OperationResult struct {
	HostID int64  `json:"host_id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
	Distro string `json:"distro,omitempty"`
	Count  int    `json:"count,omitempty"`
	Detail string `json:"detail,omitempty"`
	Note   string `json:"note,omitempty"`
}

// EventType tags entries on the batch event stream.
type EventType string

const (
	EventLine   EventType = "line"
	EventResult EventType = "result"
)

// Event is one entry on a batch event stream: either a line of remote
// output or the terminal result for a host. For every host, all line
// events precede its single result event.
type Event struct {
	Type   EventType        `json:"type"`
	JobID  string           `json:"job_id,omitempty"`
	HostID int64            `json:"host_id"`
	Line   string           `json:"line,omitempty"`
	Result *OperationResult `json:"result,omitempty"`
}
