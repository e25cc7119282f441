package store

import (
	"context"
	"errors"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

var (
	// ErrNotFound is returned when a device or execution does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExecutionFinalized is returned when a terminal execution is updated again.
	ErrExecutionFinalized = errors.New("execution already finalized")
)

// Device statuses.
const (
	DeviceOnline  = "online"
	DeviceOffline = "offline"
)

// Execution statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Device is a registered remote endpoint.
type Device struct {
	ID            string
	Hostname      string
	OSType        string
	OSVersion     string
	Status        string
	Grant         validate.Grant
	LastHeartbeat time.Time
	RegisteredAt  time.Time
}

// Execution is one dispatch-and-result cycle.
type Execution struct {
	ID          string
	DeviceID    string
	ToolName    string
	Parameters  map[string]any
	Status      string
	Result      any
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Outcome is the terminal state written to a pending execution.
type Outcome struct {
	Success bool
	Result  any
	Error   string
	At      time.Time
}

// Store persists devices and executions.
type Store interface {
	// RegisterDevice inserts a device or refreshes its identity fields.
	// An existing device keeps its grant; a new device gets d.Grant.
	RegisterDevice(ctx context.Context, d Device) (Device, error)
	GetDevice(ctx context.Context, id string) (Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	// Heartbeat marks the device online and records the heartbeat time.
	Heartbeat(ctx context.Context, id string, at time.Time) error
	SetDeviceStatus(ctx context.Context, id, status string) error
	SetGrant(ctx context.Context, id string, grant validate.Grant) error
	// MarkStaleOffline marks online devices whose last heartbeat precedes before.
	MarkStaleOffline(ctx context.Context, before time.Time) (int, error)

	CreateExecution(ctx context.Context, e Execution) error
	// FinishExecution moves a pending execution to success or failed exactly once.
	FinishExecution(ctx context.Context, id string, out Outcome) error
	GetExecution(ctx context.Context, id string) (Execution, error)
	ListExecutions(ctx context.Context, deviceID string, limit int) ([]Execution, error)

	Close() error
}

func outcomeStatus(out Outcome) string {
	if out.Success {
		return StatusSuccess
	}
	return StatusFailed
}
