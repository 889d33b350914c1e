// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

//go:build !windows

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

func checkDiskSpace(dir string) string {
	path := dir
	if _, err := os.Stat(path); err != nil {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "unable to check: " + err.Error()
	}
	return formatBytes(stat.Bavail*uint64(stat.Bsize)) + " available"
}
