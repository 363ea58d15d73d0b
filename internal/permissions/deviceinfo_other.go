//go:build !linux

package permissions

import (
	"fmt"
	"runtime"
)

func deviceInfo() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}
