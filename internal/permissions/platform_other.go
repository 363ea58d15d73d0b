//go:build !linux

package permissions

import (
	"log/slog"

	"circled/internal/store"
)

// PlatformProviders builds the provider set for hosts without a
// queryable permission surface. Every capability reports notAvailable.
func PlatformProviders(appID string, log *slog.Logger) map[store.PermissionType]StatusProvider {
	providers := make(map[store.PermissionType]StatusProvider)
	for _, t := range store.AllPermissionTypes() {
		providers[t] = NewStaticProvider(store.StatusNotAvailable, store.StatusNotAvailable)
	}
	return providers
}
