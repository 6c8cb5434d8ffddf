// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

import (
	"database/sql"
	"errors"
	"fmt"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register the SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"

	"github.com/zecsuite/zecwallet/walletdb"
)

// parseArgs parses the arguments from the walletdb Open/Create methods.
func parseArgs(dbType, funcName string, args ...interface{}) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("invalid arguments to %s.%s -- expected "+
			"data source name", dbType, funcName)
	}

	dsn, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("first argument to %s.%s is invalid -- "+
			"expected data source name string", dbType, funcName)
	}

	return dsn, nil
}

// openDB opens a connection for the given dialect.  When create is set the kv
// table is created if it is missing, otherwise a missing kv table is treated
// as a database that does not exist yet.
func openDB(d *dialect, dsn string, create bool) (walletdb.DB, error) {
	sqlDB, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, err
	}

	if create {
		// The schema statement is idempotent, so creating an already
		// created database simply opens it.
		if _, err := sqlDB.Exec(d.createSchema); err != nil {
			sqlDB.Close()
			return nil, err
		}
	} else {
		var table string
		err := sqlDB.QueryRow(d.tableExists).Scan(&table)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			sqlDB.Close()
			return nil, walletdb.ErrDbDoesNotExist

		case err != nil:
			sqlDB.Close()
			return nil, err
		}
	}

	return &db{sqlDB: sqlDB}, nil
}

// openDBDriver is the callback provided during driver registration that opens
// an existing database for use with the given dialect.
func openDBDriver(d *dialect) func(args ...interface{}) (walletdb.DB, error) {
	return func(args ...interface{}) (walletdb.DB, error) {
		dsn, err := parseArgs(d.dbType, "Open", args...)
		if err != nil {
			return nil, err
		}

		return openDB(d, dsn, false)
	}
}

// createDBDriver is the callback provided during driver registration that
// creates, initializes, and opens a database for use with the given dialect.
func createDBDriver(d *dialect) func(args ...interface{}) (walletdb.DB,
	error) {

	return func(args ...interface{}) (walletdb.DB, error) {
		dsn, err := parseArgs(d.dbType, "Create", args...)
		if err != nil {
			return nil, err
		}

		return openDB(d, dsn, true)
	}
}

// Schema returns the statement that creates the kv table for the given
// database type.  Operators can use it to provision a database out of band,
// after which Open succeeds without the wallet ever needing DDL rights.
func Schema(dbType string) (string, error) {
	for _, d := range []*dialect{sqliteDialect, postgresDialect} {
		if d.dbType == dbType {
			return d.createSchema, nil
		}
	}
	return "", fmt.Errorf("unknown database type %q", dbType)
}

func init() {
	// Register a driver per supported dialect.
	for _, d := range []*dialect{sqliteDialect, postgresDialect} {
		driver := walletdb.Driver{
			DbType: d.dbType,
			Create: createDBDriver(d),
			Open:   openDBDriver(d),
		}
		if err := walletdb.RegisterDriver(driver); err != nil {
			panic(fmt.Sprintf("Failed to register database "+
				"driver '%s': %v", d.dbType, err))
		}
	}
}
