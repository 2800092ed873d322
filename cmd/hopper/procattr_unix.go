//go:build !windows

package main

import "syscall"

// detachedProcAttr starts the daemon in its own session so it survives the
// terminal that spawned it.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
