// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build tools
// +build tools

package tools

import (
	// Pin the import formatter so its version is tracked by this module
	// rather than whatever is on the developer's PATH.
	_ "github.com/rinchsan/gosimports/cmd/gosimports"
)
