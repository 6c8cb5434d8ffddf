// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
	_ "github.com/zecsuite/zecwallet/walletdb/sqldb"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

const (
	defaultNet       = "mainnet"
	defaultDBTimeout = 60 * time.Second
)

var datadir = btcutil.AppDataDir("zecwallet", false)

// Flags.
var opts = struct {
	Force  bool   `short:"f" description:"Force removal without prompt"`
	DbType string `long:"dbtype" description:"Database backend: bdb, sqlite or postgres"`
	DbPath string `long:"db" description:"Path (bdb) or data source name (sqlite, postgres) of the wallet database"`
}{
	Force:  false,
	DbType: "bdb",
	DbPath: filepath.Join(datadir, defaultNet, "wallet.db"),
}

func init() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}
}

// wtxmgrNamespace is the top level bucket holding all scanned block state:
// block records, transactions, notes, witnesses and the nullifier index.
var wtxmgrNamespace = []byte("wtxmgr")

func yes(s string) bool {
	switch s {
	case "y", "Y", "yes", "Yes":
		return true
	default:
		return false
	}
}

func no(s string) bool {
	switch s {
	case "n", "N", "no", "No":
		return true
	default:
		return false
	}
}

func openDB() (walletdb.DB, error) {
	switch opts.DbType {
	case "bdb":
		return walletdb.Open("bdb", opts.DbPath, true, defaultDBTimeout)
	case "sqlite", "postgres":
		return walletdb.Open(opts.DbType, opts.DbPath)
	default:
		return nil, fmt.Errorf("unknown database type %q", opts.DbType)
	}
}

func main() {
	os.Exit(mainInt())
}

func mainInt() int {
	fmt.Println("Database path:", opts.DbPath)
	if opts.DbType == "bdb" {
		_, err := os.Stat(opts.DbPath)
		if os.IsNotExist(err) {
			fmt.Println("Database file does not exist")
			return 1
		}
	}

	for !opts.Force {
		fmt.Print("Drop all zecwallet scanned block data? [y/N] ")

		scanner := bufio.NewScanner(bufio.NewReader(os.Stdin))
		if !scanner.Scan() {
			// Exit on EOF.
			return 0
		}
		err := scanner.Err()
		if err != nil {
			fmt.Println()
			fmt.Println(err)
			return 1
		}
		resp := scanner.Text()
		if yes(resp) {
			break
		}
		if no(resp) || resp == "" {
			return 0
		}

		fmt.Println("Enter yes or no.")
	}

	db, err := openDB()
	if err != nil {
		fmt.Println("Failed to open database:", err)
		return 1
	}
	defer db.Close()
	fmt.Println("Dropping scanned block state")
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		err := tx.DeleteTopLevelBucket(wtxmgrNamespace)
		if err != nil && err != walletdb.ErrBucketNotFound {
			return err
		}
		ns, err := tx.CreateTopLevelBucket(wtxmgrNamespace)
		if err != nil {
			return err
		}
		return wtxmgr.Create(ns)
	})
	if err != nil {
		fmt.Println("Failed to drop and re-create namespace:", err)
		return 1
	}

	fmt.Println("Scanned block state dropped; the wallet will rescan " +
		"from the Sapling activation height on next use")
	return 0
}
