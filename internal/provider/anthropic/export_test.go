// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package anthropic

// Exported for tests.
var (
	ConvertMessages = convertMessages
	BuildParams     = buildParams
)
