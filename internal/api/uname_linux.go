//go:build linux

package api

import "golang.org/x/sys/unix"

func unameLinux() (sysname, release, machine string, err error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", "", "", err
	}
	return cstr(u.Sysname[:]), cstr(u.Release[:]), cstr(u.Machine[:]), nil
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
