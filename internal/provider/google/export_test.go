// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package google

// Exported for tests.
var (
	ConvertMessages = convertMessages
	BuildConfig     = buildConfig
)
