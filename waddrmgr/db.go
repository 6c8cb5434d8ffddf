// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/walletdb"
)

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

// Database versions.  Versions start at 1 and increment for each database
// change.
const (
	// LatestVersion is the most recent manager version.
	LatestVersion = 1
)

// Bucket names.
var (
	bucketAccounts = []byte("acct")
)

// Root (namespace) bucket keys.
var (
	rootCreateDate = []byte("date")
	rootVersion    = []byte("vers")
)

// Account row value TLV types.
var (
	typeAcctViewingKey tlv.Type = 1
	typeAcctAddress    tlv.Type = 2
)

// fetchVersion reads the recorded database version from the namespace.
func fetchVersion(ns walletdb.ReadBucket) (uint32, error) {
	v := ns.Get(rootVersion)
	if v == nil {
		str := "required version does not exist"
		return 0, managerError(ErrNoExists, str, nil)
	}
	if len(v) != 4 {
		str := "invalid version"
		return 0, managerError(ErrData, str, nil)
	}
	return byteOrder.Uint32(v), nil
}

func putVersion(ns walletdb.ReadWriteBucket, version uint32) error {
	v := make([]byte, 4)
	byteOrder.PutUint32(v, version)
	err := ns.Put(rootVersion, v)
	if err != nil {
		str := "failed to store version"
		return managerError(ErrDatabase, str, err)
	}
	return nil
}

// Account rows are keyed by the account number serialized as a 4 byte big
// endian unsigned integer, so that cursor scans visit accounts in ascending
// order.

func keyAccount(account uint32) []byte {
	k := make([]byte, 4)
	byteOrder.PutUint32(k, account)
	return k
}

// accountRow carries the stored form of a single account.  Both the incoming
// viewing key and the default payment address are persisted in their bech32
// string encodings, which ties every row to the network the manager was
// created for.
type accountRow struct {
	viewingKey string
	address    string
}

func valueAccountRow(row *accountRow) ([]byte, error) {
	var (
		key  = []byte(row.viewingKey)
		addr = []byte(row.address)
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeAcctViewingKey, &key),
		tlv.MakePrimitiveRecord(typeAcctAddress, &addr),
	)
	if err != nil {
		return nil, managerError(ErrData, "failed to create account "+
			"stream", err)
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, managerError(ErrData, "failed to encode account "+
			"row", err)
	}
	return buf.Bytes(), nil
}

func readRawAccountRow(v []byte, row *accountRow) error {
	var (
		key  []byte
		addr []byte
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeAcctViewingKey, &key),
		tlv.MakePrimitiveRecord(typeAcctAddress, &addr),
	)
	if err != nil {
		return managerError(ErrData, "failed to create account stream",
			err)
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		str := fmt.Sprintf("%s: malformed account row", bucketAccounts)
		return managerError(ErrData, str, err)
	}
	for _, required := range []tlv.Type{
		typeAcctViewingKey, typeAcctAddress,
	} {
		if t, ok := parsedTypes[required]; !ok || t != nil {
			str := fmt.Sprintf("%s: account row missing required "+
				"field %d", bucketAccounts, required)
			return managerError(ErrData, str, nil)
		}
	}

	row.viewingKey = string(key)
	row.address = string(addr)
	return nil
}

func putAccountRow(ns walletdb.ReadWriteBucket, account uint32,
	row *accountRow) error {

	v, err := valueAccountRow(row)
	if err != nil {
		return err
	}
	err = ns.NestedReadWriteBucket(bucketAccounts).Put(keyAccount(account), v)
	if err != nil {
		str := fmt.Sprintf("failed to store account %d", account)
		return managerError(ErrDatabase, str, err)
	}
	return nil
}

func existsAccountRow(ns walletdb.ReadBucket, account uint32) []byte {
	return ns.NestedReadBucket(bucketAccounts).Get(keyAccount(account))
}

func fetchAccountRow(ns walletdb.ReadBucket, account uint32) (*accountRow, error) {
	v := existsAccountRow(ns, account)
	if v == nil {
		str := fmt.Sprintf("account %d not found", account)
		return nil, managerError(ErrAccountNotFound, str, nil)
	}
	var row accountRow
	if err := readRawAccountRow(v, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// forEachAccountRow invokes f for every stored account in ascending account
// order.  Iteration stops at the first error, which is returned to the
// caller.
func forEachAccountRow(ns walletdb.ReadBucket,
	f func(account uint32, row *accountRow) error) error {

	c := ns.NestedReadBucket(bucketAccounts).ReadCursor()
	for ck, cv := c.First(); ck != nil; ck, cv = c.Next() {
		if len(ck) != 4 {
			str := fmt.Sprintf("%s: short key for account row",
				bucketAccounts)
			return managerError(ErrData, str, nil)
		}
		var row accountRow
		if err := readRawAccountRow(cv, &row); err != nil {
			return err
		}
		if err := f(byteOrder.Uint32(ck), &row); err != nil {
			return err
		}
	}
	return nil
}

// createManager creates a new account manager in the passed namespace,
// storing the provided rows as accounts 0 through len(rows)-1.  The namespace
// must be empty.
func createManager(ns walletdb.ReadWriteBucket, rows []*accountRow) error {
	// Ensure that nothing currently exists in the namespace bucket.
	ck, cv := ns.ReadCursor().First()
	if ck != nil || cv != nil {
		const str = "namespace is not empty"
		return managerError(ErrAlreadyExists, str, nil)
	}

	// Write the latest manager version.
	if err := putVersion(ns, LatestVersion); err != nil {
		return err
	}

	// Save the creation date of the manager.
	var v [8]byte
	byteOrder.PutUint64(v[:], uint64(time.Now().Unix()))
	err := ns.Put(rootCreateDate, v[:])
	if err != nil {
		str := "failed to store database creation time"
		return managerError(ErrDatabase, str, err)
	}

	if _, err := ns.CreateBucket(bucketAccounts); err != nil {
		str := fmt.Sprintf("failed to create bucket %s", bucketAccounts)
		return managerError(ErrDatabase, str, err)
	}

	for i, row := range rows {
		if err := putAccountRow(ns, uint32(i), row); err != nil {
			return err
		}
	}
	return nil
}

// openManager verifies that the passed namespace holds an account manager at
// a usable database version.
func openManager(ns walletdb.ReadBucket) error {
	version, err := fetchVersion(ns)
	if err != nil {
		return err
	}

	if version < LatestVersion {
		str := fmt.Sprintf("a database upgrade is required to upgrade "+
			"from recorded version %d to the latest version %d",
			version, LatestVersion)
		return managerError(ErrNeedsUpgrade, str, nil)
	}
	if version > LatestVersion {
		str := fmt.Sprintf("recorded version %d is newer than the "+
			"latest understood version %d", version, LatestVersion)
		return managerError(ErrUnknownVersion, str, nil)
	}
	return nil
}
