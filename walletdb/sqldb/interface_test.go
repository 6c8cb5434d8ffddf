// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// This file exists to invoke the shared walletdb interface test suite against
// this backend driver.  Every driver carries a file like this one so the suite
// runs against each registered backend.

package sqldb_test

import (
	"testing"

	"github.com/zecsuite/zecwallet/internal/sqltest"
	"github.com/zecsuite/zecwallet/walletdb/walletdbtest"
)

// TestInterface performs all interfaces tests for the sqlite backend of this
// database driver.
func TestInterface(t *testing.T) {
	walletdbtest.TestInterface(t, dbType, sqltest.NewSQLiteDSN(t))
}
