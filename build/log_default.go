// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !nolog && !stdlog
// +build !nolog,!stdlog

package build

// LoggingType is a log type that writes to the logging backend provided by
// the daemon, if present.
const LoggingType = LogTypeDefault
