//go:build !linux

package api

import "runtime"

func unameLinux() (sysname, release, machine string, err error) {
	return runtime.GOOS, "unknown", runtime.GOARCH, nil
}
