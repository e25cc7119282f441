package store

import (
	"context"
	"errors"
)

// Permissions answers validator permission queries from device grants.
// Unknown devices are granted nothing.
type Permissions struct {
	Store Store
}

func (p Permissions) grant(ctx context.Context, deviceID string) (Device, bool, error) {
	d, err := p.Store.GetDevice(ctx, deviceID)
	if errors.Is(err, ErrNotFound) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, err
	}
	return d, true, nil
}

// PermittedTool reports whether the device may use toolName.
func (p Permissions) PermittedTool(ctx context.Context, deviceID, toolName string) (bool, error) {
	d, ok, err := p.grant(ctx, deviceID)
	if !ok {
		return false, err
	}
	return d.Grant.AllowsTool(toolName), nil
}

// PermittedPath reports whether path falls under one of the device's prefixes.
func (p Permissions) PermittedPath(ctx context.Context, deviceID, path string) (bool, error) {
	d, ok, err := p.grant(ctx, deviceID)
	if !ok {
		return false, err
	}
	return d.Grant.AllowsPath(path), nil
}

// PermittedApp reports whether the device may open or close appName.
func (p Permissions) PermittedApp(ctx context.Context, deviceID, appName string) (bool, error) {
	d, ok, err := p.grant(ctx, deviceID)
	if !ok {
		return false, err
	}
	return d.Grant.AllowsApp(appName), nil
}
