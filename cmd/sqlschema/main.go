// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command sqlschema exports the kv table schema used by the walletdb sql
// backends so a database can be provisioned out of band, after which the
// wallet can open it without DDL rights.  The sqlite variant is applied
// against an in-memory database first and exported in the canonical form
// sqlite reports, which also proves the statement parses.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/zecsuite/zecwallet/walletdb/sqldb"

	_ "modernc.org/sqlite" // Register the pure-Go SQLite driver.
)

const (
	filePerm       = 0o600
	defaultTimeout = time.Minute
)

var opts = struct {
	DbType string `long:"dbtype" description:"Database backend: sqlite or postgres"`
	Out    string `long:"out" description:"Output file (defaults to stdout)"`
}{
	DbType: "sqlite",
}

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	err = run()
	if err != nil {
		log.Fatal(err)
	}
}

func run() error {
	schema, err := sqldb.Schema(opts.DbType)
	if err != nil {
		return err
	}

	if opts.DbType == "sqlite" {
		schema, err = canonicalSQLiteSchema(schema)
		if err != nil {
			return err
		}
	} else {
		schema += ";\n"
	}

	return writeSchema(opts.Out, schema)
}

// canonicalSQLiteSchema round-trips the schema statement through an in-memory
// database and returns the consolidated schema with a deterministic order.
func canonicalSQLiteSchema(schema string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return "", fmt.Errorf("failed to open in-memory db: %w", err)
	}

	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, schema)
	if err != nil {
		return "", fmt.Errorf("failed to apply schema: %w", err)
	}

	return extractSchema(ctx, db)
}

func extractSchema(ctx context.Context, db *sql.DB) (string, error) {
	// Internal sqlite_* objects are skipped since they cannot be created
	// by a provisioning script.
	rows, err := db.QueryContext(ctx, `
        SELECT type, name, sql FROM sqlite_master
        WHERE type IN ('table','view','index') AND sql IS NOT NULL
            AND name NOT LIKE 'sqlite_%'
        ORDER BY
            CASE type
                WHEN 'table' THEN 1
                WHEN 'view' THEN 2
                WHEN 'index' THEN 3
                ELSE 4
            END,
            name`)
	if err != nil {
		return "", fmt.Errorf("failed to query schema: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var b strings.Builder
	for rows.Next() {
		var typ, name, sqlDef string

		err := rows.Scan(&typ, &name, &sqlDef)
		if err != nil {
			return "", fmt.Errorf(
				"failed to scan schema row: %w",
				err,
			)
		}

		b.WriteString(sqlDef)
		b.WriteString(";\n")
	}

	err = rows.Err()
	if err != nil {
		return "", fmt.Errorf("failed to iterate schema rows: %w", err)
	}

	return b.String(), nil
}

func writeSchema(outPath, schema string) error {
	if outPath == "" {
		_, err := os.Stdout.WriteString(schema)
		return err
	}

	err := os.WriteFile(outPath, []byte(schema), filePerm)
	if err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	return nil
}
