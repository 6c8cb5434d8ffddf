// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package bdb implements an instance of walletdb that uses bbolt for the backing
datastore.

# Usage

This package is only a driver to the walletdb package and provides the database
type of "bdb".  The Open and Create functions take the database path as a
string, a boolean controlling whether the bbolt freelist is synced to disk and
the timeout value for opening the database file:

	db, err := walletdb.Open("bdb", "path/to/database.db", true, 60*time.Second)
	if err != nil {
		// Handle error
	}

	db, err := walletdb.Create("bdb", "path/to/database.db", true, 60*time.Second)
	if err != nil {
		// Handle error
	}
*/
package bdb
