// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletdb_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
)

// This example demonstrates creating a new wallet database.
func ExampleCreate() {
	// This example assumes the bdb (bolt db) driver is imported.
	//
	// import (
	// 	"github.com/zecsuite/zecwallet/walletdb"
	// 	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
	// )

	// Create a database and schedule it to be closed and removed on exit.
	// A wallet keeps its database for its whole lifetime; it is removed
	// here only so the example cleans up after itself.
	dbPath := filepath.Join(os.TempDir(), "examplecreate.db")
	db, err := walletdb.Create("bdb", dbPath, true, defaultDBTimeout)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.Remove(dbPath)
	defer db.Close()

	// Output:
}

// exampleNum provides a unique database name for each example.
var exampleNum = 0

// exampleLoadDB elides the database setup code from the examples.
func exampleLoadDB() (walletdb.DB, func(), error) {
	dbName := fmt.Sprintf("exampleload%d.db", exampleNum)
	dbPath := filepath.Join(os.TempDir(), dbName)
	db, err := walletdb.Create("bdb", dbPath, true, defaultDBTimeout)
	if err != nil {
		return nil, nil, err
	}
	teardownFunc := func() {
		db.Close()
		os.Remove(dbPath)
	}
	exampleNum++

	return db, teardownFunc, err
}

// This example demonstrates carving a fresh database into the namespaces the
// wallet sub-packages work in.  Each sub-package receives its top level
// bucket and never sees keys belonging to the others.
func Example_namespaces() {
	db, teardownFunc, err := exampleLoadDB()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer teardownFunc()

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		for _, namespaceKey := range [][]byte{
			[]byte("waddrmgr"), []byte("wtxmgr"),
		} {
			_, err := tx.CreateTopLevelBucket(namespaceKey)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Output:
}

// This example demonstrates using a managed read-write transaction against a
// namespace to store and retrieve data, in the shape the note store uses: a
// record keyed by block height in the namespace root, plus a nested bucket
// whose key space is independent of the root's.
func Example_basicUsage() {
	db, teardownFunc, err := exampleLoadDB()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer teardownFunc()

	// Get or create the namespace bucket as needed.  The returned bucket
	// is what is typically handed to a sub-package so it has its own area
	// to work in without worrying about conflicting keys.
	namespaceKey := []byte("wtxmgr")
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		if tx.ReadWriteBucket(namespaceKey) == nil {
			_, err := tx.CreateTopLevelBucket(namespaceKey)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Update runs the closure inside a managed read-write transaction.
	// The transaction is rolled back automatically if the closure returns
	// a non-nil error, so partial writes never persist.
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(namespaceKey)

		// Store a record keyed by block height directly in the
		// namespace root.
		var heightKey [4]byte
		binary.BigEndian.PutUint32(heightKey[:], 419200)
		record := []byte("block record goes here")
		if err := ns.Put(heightKey[:], record); err != nil {
			return err
		}

		// Read the record back and ensure it matches.
		if !bytes.Equal(ns.Get(heightKey[:]), record) {
			return fmt.Errorf("unexpected value for height %d",
				419200)
		}

		// Create a nested bucket for per-note data.
		notes, err := ns.CreateBucket([]byte("notes"))
		if err != nil {
			return err
		}

		// The height key set in the namespace root does not exist in
		// the nested bucket; each bucket's key space is independent.
		if notes.Get(heightKey[:]) != nil {
			return fmt.Errorf("height key leaked into nested bucket")
		}

		return nil
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Output:
}
