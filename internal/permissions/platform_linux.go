//go:build linux

package permissions

import (
	"log/slog"

	"circled/internal/store"
)

// Permission store tables used by xdg-desktop-portal.
const (
	tableDevices       = "devices"
	tableLocation      = "location"
	tableNotifications = "notifications"
)

// PlatformProviders builds the provider set for this host. Capabilities
// tracked by the desktop portal use the permission store; the rest have
// no host query surface and report notAvailable.
func PlatformProviders(appID string, log *slog.Logger) map[store.PermissionType]StatusProvider {
	providers := map[store.PermissionType]StatusProvider{
		store.PermissionMotion:   NewStaticProvider(store.StatusNotAvailable, store.StatusNotAvailable),
		store.PermissionContacts: NewStaticProvider(store.StatusNotAvailable, store.StatusNotAvailable),
		store.PermissionHealth:   NewStaticProvider(store.StatusNotAvailable, store.StatusNotAvailable),
	}

	portals := []struct {
		typ       store.PermissionType
		table, id string
	}{
		{store.PermissionCamera, tableDevices, "camera"},
		{store.PermissionLocation, tableLocation, "location"},
		{store.PermissionNotifications, tableNotifications, "notification"},
	}
	for _, p := range portals {
		provider, err := NewPortalProvider(p.table, p.id, appID)
		if err != nil {
			log.Warn("portal unavailable for permission", "type", p.typ, "error", err)
			providers[p.typ] = NewStaticProvider(store.StatusNotAvailable, store.StatusNotAvailable)
			continue
		}
		providers[p.typ] = provider
	}
	return providers
}
