// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

func checkDiskSpace(dir string) string {
	path := dir
	if _, err := os.Stat(path); err != nil {
		path, _ = os.UserHomeDir()
	}

	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "unable to check: " + err.Error()
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return "unable to check: " + err.Error()
	}
	return formatBytes(free) + " available"
}
