// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build integration_test

package sqldb_test

import (
	"testing"

	"github.com/zecsuite/zecwallet/internal/sqltest"
	"github.com/zecsuite/zecwallet/walletdb/walletdbtest"
)

// postgresDBType is the database type name of the postgres backend.
const postgresDBType = "postgres"

// TestInterfacePostgres performs all interface tests for the postgres backend
// of this database driver against a containerized server.
func TestInterfacePostgres(t *testing.T) {
	dsn := sqltest.NewPostgresDSN(t)
	walletdbtest.TestInterface(t, postgresDBType, dsn)
}
