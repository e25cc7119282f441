package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// Memory is an in-process Store.
type Memory struct {
	mu         sync.RWMutex
	devices    map[string]Device
	executions map[string]Execution
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		devices:    make(map[string]Device),
		executions: make(map[string]Execution),
	}
}

func (m *Memory) RegisterDevice(_ context.Context, d Device) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.devices[d.ID]; ok {
		d.Grant = existing.Grant
		d.RegisteredAt = existing.RegisteredAt
	}
	m.devices[d.ID] = d
	return d, nil
}

func (m *Memory) GetDevice(_ context.Context, id string) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDevices(_ context.Context) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Heartbeat(_ context.Context, id string, at time.Time) error {
	return m.updateDevice(id, func(d *Device) {
		d.Status = DeviceOnline
		d.LastHeartbeat = at
	})
}

func (m *Memory) SetDeviceStatus(_ context.Context, id, status string) error {
	return m.updateDevice(id, func(d *Device) { d.Status = status })
}

func (m *Memory) SetGrant(_ context.Context, id string, grant validate.Grant) error {
	return m.updateDevice(id, func(d *Device) { d.Grant = grant })
}

func (m *Memory) MarkStaleOffline(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, d := range m.devices {
		if d.Status == DeviceOnline && d.LastHeartbeat.Before(before) {
			d.Status = DeviceOffline
			m.devices[id] = d
			n++
		}
	}
	return n, nil
}

func (m *Memory) updateDevice(id string, fn func(*Device)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	fn(&d)
	m.devices[id] = d
	return nil
}

func (m *Memory) CreateExecution(_ context.Context, e Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Parameters = maps.Clone(e.Parameters)
	m.executions[e.ID] = e
	return nil
}

func (m *Memory) FinishExecution(_ context.Context, id string, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusPending {
		return ErrExecutionFinalized
	}
	at := out.At
	e.Status = outcomeStatus(out)
	e.Result = out.Result
	e.Error = out.Error
	e.CompletedAt = &at
	m.executions[id] = e
	return nil
}

func (m *Memory) GetExecution(_ context.Context, id string) (Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	if !ok {
		return Execution{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListExecutions(_ context.Context, deviceID string, limit int) ([]Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Execution
	for _, e := range m.executions {
		if deviceID == "" || e.DeviceID == deviceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
