//go:build windows

package main

import "syscall"

// getDaemonSysProcAttr returns the SysProcAttr for detaching the daemon
// on Windows: HideWindow runs the process without a console window.
func getDaemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow: true,
	}
}
