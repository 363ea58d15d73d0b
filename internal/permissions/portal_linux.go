//go:build linux

package permissions

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"circled/internal/store"
)

const (
	portalService = "org.freedesktop.impl.portal.PermissionStore"
	portalPath    = "/org/freedesktop/impl/portal/PermissionStore"
	portalIface   = "org.freedesktop.impl.portal.PermissionStore"
)

// PortalProvider reads permission status from the xdg-desktop-portal
// permission store over the session bus. The store groups decisions by
// table and resource id, with per-app verdict strings.
type PortalProvider struct {
	conn  *dbus.Conn
	table string
	id    string
	appID string
}

// NewPortalProvider connects to the session bus and binds to one
// permission store entry.
func NewPortalProvider(table, id, appID string) (*PortalProvider, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &PortalProvider{conn: conn, table: table, id: id, appID: appID}, nil
}

// Close releases the bus connection.
func (p *PortalProvider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Status implements StatusProvider by looking up the stored verdict.
func (p *PortalProvider) Status(ctx context.Context) store.PermissionStatus {
	obj := p.conn.Object(portalService, dbus.ObjectPath(portalPath))

	var perms map[string][]string
	var data dbus.Variant
	call := obj.CallWithContext(ctx, portalIface+".Lookup", 0, p.table, p.id)
	if call.Err != nil {
		// No portal, or no entry for this resource yet.
		if dbusErr, ok := call.Err.(dbus.Error); ok && dbusErr.Name == "org.freedesktop.portal.Error.NotFound" {
			return store.StatusNotDetermined
		}
		return store.StatusNotAvailable
	}
	if err := call.Store(&perms, &data); err != nil {
		return store.StatusNotAvailable
	}

	verdicts, ok := perms[p.appID]
	if !ok || len(verdicts) == 0 {
		return store.StatusNotDetermined
	}
	switch verdicts[0] {
	case "yes", "GRANTED":
		return store.StatusGranted
	case "no", "DENIED":
		return store.StatusDenied
	case "ask":
		return store.StatusNotDetermined
	default:
		return store.StatusRestricted
	}
}

// Request implements StatusProvider. Prompting is owned by the desktop
// portal UI; the daemon only re-reads the stored verdict.
func (p *PortalProvider) Request(ctx context.Context) (bool, error) {
	return p.Status(ctx) == store.StatusGranted, nil
}
