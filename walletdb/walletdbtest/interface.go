// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// This file provides a suite of tests exercising the walletdb interface
// contract.  Backend drivers invoke TestInterface from their own test files to
// prove the driver behaves as the interface documentation requires.

package walletdbtest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/zecsuite/zecwallet/walletdb"
)

// errSubTestFail is used to signal that a sub test returned false.
var errSubTestFail = fmt.Errorf("sub test failure")

// Tester is an interface type that wraps the methods of testing.T and
// testing.B that are used by the interface tests so the suite can be driven
// from both.
type Tester interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fail()
	FailNow()
	Failed() bool
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Log(args ...interface{})
	Logf(format string, args ...interface{})
}

// testContext is used to store context information about a running test which
// is passed into helper functions.
type testContext struct {
	t           Tester
	db          walletdb.DB
	bucketDepth int
	isWritable  bool
}

// rollbackValues returns a copy of the provided map with all values set to an
// empty string.  This is used to test that values are not present.
func rollbackValues(values map[string]string) map[string]string {
	retMap := make(map[string]string, len(values))
	for k := range values {
		retMap[k] = ""
	}
	return retMap
}

// testGetValues checks that all of the provided key/value pairs can be
// retrieved from the database and the retrieved values match the provided
// values.
func testGetValues(tc *testContext, bucket walletdb.ReadBucket, values map[string]string) bool {
	for k, v := range values {
		var vBytes []byte
		if v != "" {
			vBytes = []byte(v)
		}

		gotValue := bucket.Get([]byte(k))
		if !bytes.Equal(gotValue, vBytes) {
			tc.t.Errorf("Get: unexpected value - got %s, want %s",
				gotValue, vBytes)
			return false
		}
	}

	return true
}

// testPutValues stores all of the provided key/value pairs in the provided
// bucket while checking for errors.
func testPutValues(tc *testContext, bucket walletdb.ReadWriteBucket, values map[string]string) bool {
	for k, v := range values {
		var vBytes []byte
		if v != "" {
			vBytes = []byte(v)
		}
		if err := bucket.Put([]byte(k), vBytes); err != nil {
			tc.t.Errorf("Put: unexpected error: %v", err)
			return false
		}
	}

	return true
}

// testDeleteValues removes all of the provided key/value pairs from the
// provided bucket.
func testDeleteValues(tc *testContext, bucket walletdb.ReadWriteBucket, values map[string]string) bool {
	for k := range values {
		if err := bucket.Delete([]byte(k)); err != nil {
			tc.t.Errorf("Delete: unexpected error: %v", err)
			return false
		}
	}

	return true
}

// testNestedReadWriteBucket reruns the testBucketInterface against a nested
// bucket along with a counter to only test a couple of level deep.
func testNestedReadWriteBucket(tc *testContext, testBucket walletdb.ReadWriteBucket) bool {
	// Don't go more than 2 nested levels deep.
	if tc.bucketDepth > 1 {
		return true
	}

	tc.bucketDepth++
	defer func() {
		tc.bucketDepth--
	}()

	return testReadWriteBucketInterface(tc, testBucket)
}

// testSequence checks the sequence number properties of the provided bucket:
// monotonically increasing NextSequence values, Sequence visibility and
// SetSequence resets.
func testSequence(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	start := bucket.Sequence()
	for i := uint64(1); i <= 3; i++ {
		seq, err := bucket.NextSequence()
		if err != nil {
			tc.t.Errorf("NextSequence: unexpected error: %v", err)
			return false
		}
		if seq != start+i {
			tc.t.Errorf("NextSequence: got %d, want %d", seq, start+i)
			return false
		}
	}
	if seq := bucket.Sequence(); seq != start+3 {
		tc.t.Errorf("Sequence: got %d, want %d", seq, start+3)
		return false
	}

	if err := bucket.SetSequence(start + 100); err != nil {
		tc.t.Errorf("SetSequence: unexpected error: %v", err)
		return false
	}
	seq, err := bucket.NextSequence()
	if err != nil {
		tc.t.Errorf("NextSequence: unexpected error: %v", err)
		return false
	}
	if seq != start+101 {
		tc.t.Errorf("NextSequence after SetSequence: got %d, want %d",
			seq, start+101)
		return false
	}

	return true
}

// testCursorInterface ensures the cursor itnerface is working properly by
// exercising all of its functions on the passed bucket.
func testCursorInterface(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	// Insert key/value pairs out of order to ensure the cursor returns
	// them in byte order for the key.
	unsortedValues := map[string]string{
		"cursor3": "val3",
		"cursor1": "val1",
		"cursor4": "val4",
		"cursor2": "val2",
	}
	if !testPutValues(tc, bucket, unsortedValues) {
		return false
	}
	wantKeys := []string{"cursor1", "cursor2", "cursor3", "cursor4"}

	cursor := bucket.ReadWriteCursor()

	// Forward iteration must return the keys in byte order.
	var forward []string
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		forward = append(forward, string(k))
	}
	if len(forward) != len(wantKeys) {
		tc.t.Errorf("cursor forward: got %d keys, want %d",
			len(forward), len(wantKeys))
		return false
	}
	for i, k := range wantKeys {
		if forward[i] != k {
			tc.t.Errorf("cursor forward[%d]: got %s, want %s", i,
				forward[i], k)
			return false
		}
	}

	// Reverse iteration must return the keys in reverse byte order.
	var reverse []string
	for k, _ := cursor.Last(); k != nil; k, _ = cursor.Prev() {
		reverse = append(reverse, string(k))
	}
	for i := range wantKeys {
		if reverse[len(reverse)-1-i] != wantKeys[i] {
			tc.t.Errorf("cursor reverse[%d]: got %s, want %s", i,
				reverse[len(reverse)-1-i], wantKeys[i])
			return false
		}
	}

	// Seek to a key that does not exist must land on the next key after
	// it.
	if k, _ := cursor.Seek([]byte("cursor25")); string(k) != "cursor3" {
		tc.t.Errorf("cursor Seek: got %s, want cursor3", k)
		return false
	}

	// Cursor deletion must remove the current pair without invalidating
	// the cursor.
	if k, _ := cursor.Seek([]byte("cursor2")); string(k) != "cursor2" {
		tc.t.Errorf("cursor Seek: got %s, want cursor2", k)
		return false
	}
	if err := cursor.Delete(); err != nil {
		tc.t.Errorf("cursor Delete: unexpected error: %v", err)
		return false
	}
	if v := bucket.Get([]byte("cursor2")); v != nil {
		tc.t.Errorf("cursor Delete: key still present")
		return false
	}

	return testDeleteValues(tc, bucket, unsortedValues)
}

// testReadWriteBucketInterface ensures the read/write bucket interface is
// working properly by exercising all of its functions.
func testReadWriteBucketInterface(tc *testContext, bucket walletdb.ReadWriteBucket) bool {
	// keyValues holds the keys and values to use when putting values
	// into the bucket.
	keyValues := map[string]string{
		"bucketkey1": "foo1",
		"bucketkey2": "foo2",
		"bucketkey3": "foo3",
	}
	if !testPutValues(tc, bucket, keyValues) {
		return false
	}
	if !testGetValues(tc, bucket, keyValues) {
		return false
	}

	// Iterate all of the keys using ForEach while making sure each key
	// matches the expected value.
	keysFound := make(map[string]struct{}, len(keyValues))
	err := bucket.ForEach(func(k, v []byte) error {
		kString := string(k)
		wantV, ok := keyValues[kString]
		if !ok {
			return fmt.Errorf("ForEach: key '%s' should not exist",
				kString)
		}

		if !bytes.Equal(v, []byte(wantV)) {
			return fmt.Errorf("ForEach: value for key '%s' does "+
				"not match - got %s, want %s", kString, v,
				wantV)
		}

		keysFound[kString] = struct{}{}
		return nil
	})
	if err != nil {
		tc.t.Errorf("%v", err)
		return false
	}

	// Ensure all keys were iterated.
	for k := range keyValues {
		if _, ok := keysFound[k]; !ok {
			tc.t.Errorf("ForEach: key '%s' was not iterated when "+
				"it should have been", k)
			return false
		}
	}

	// Delete the keys and ensure they were deleted.
	if !testDeleteValues(tc, bucket, keyValues) {
		return false
	}
	if !testGetValues(tc, bucket, rollbackValues(keyValues)) {
		return false
	}

	// Deleting a key that does not exist must not error.
	if err := bucket.Delete([]byte("missingkey")); err != nil {
		tc.t.Errorf("Delete(missing): unexpected error: %v", err)
		return false
	}

	if !testCursorInterface(tc, bucket) {
		return false
	}
	if !testSequence(tc, bucket) {
		return false
	}

	// Ensure creating a new bucket works as expected.
	testBucketName := []byte("testbucket")
	testBucket, err := bucket.CreateBucket(testBucketName)
	if err != nil {
		tc.t.Errorf("CreateBucket: unexpected error: %v", err)
		return false
	}
	if !testNestedReadWriteBucket(tc, testBucket) {
		return false
	}

	// Ensure creating a bucket that already exists fails with the
	// expected error.
	if _, err := bucket.CreateBucket(testBucketName); err != walletdb.ErrBucketExists {
		tc.t.Errorf("CreateBucket: unexpected error - got %v, want %v",
			err, walletdb.ErrBucketExists)
		return false
	}

	// Ensure CreateBucketIfNotExists returns an existing bucket.
	testBucket, err = bucket.CreateBucketIfNotExists(testBucketName)
	if err != nil {
		tc.t.Errorf("CreateBucketIfNotExists: unexpected error: %v", err)
		return false
	}
	if !testNestedReadWriteBucket(tc, testBucket) {
		return false
	}

	// Ensure retrieving an existing bucket works as expected.
	testBucket = bucket.NestedReadWriteBucket(testBucketName)
	if testBucket == nil {
		tc.t.Errorf("NestedReadWriteBucket: unexpected nil bucket")
		return false
	}
	if !testNestedReadWriteBucket(tc, testBucket) {
		return false
	}

	// Ensure deleting a bucket works as intended.
	if err := bucket.DeleteNestedBucket(testBucketName); err != nil {
		tc.t.Errorf("DeleteNestedBucket: unexpected error: %v", err)
		return false
	}
	if b := bucket.NestedReadBucket(testBucketName); b != nil {
		tc.t.Errorf("DeleteNestedBucket: bucket '%s' still exists",
			testBucketName)
		return false
	}

	// Ensure deleting a bucket that doesn't exist returns the expected
	// error.
	if err := bucket.DeleteNestedBucket(testBucketName); err != walletdb.ErrBucketNotFound {
		tc.t.Errorf("DeleteNestedBucket: unexpected error - got %v, "+
			"want %v", err, walletdb.ErrBucketNotFound)
		return false
	}

	// Ensure CreateBucketIfNotExists creates a new bucket when it doesn't
	// already exist.
	testBucket, err = bucket.CreateBucketIfNotExists(testBucketName)
	if err != nil {
		tc.t.Errorf("CreateBucketIfNotExists: unexpected error: %v", err)
		return false
	}
	if !testNestedReadWriteBucket(tc, testBucket) {
		return false
	}

	// Delete the test bucket to avoid leaving it around for future calls.
	if err := bucket.DeleteNestedBucket(testBucketName); err != nil {
		tc.t.Errorf("DeleteNestedBucket: unexpected error: %v", err)
		return false
	}

	return true
}

// testManualTxInterface ensures that manual transactions work as expected:
// read transactions see committed state only and rolled back write
// transactions leave no trace.
func testManualTxInterface(tc *testContext, bucketKey []byte) bool {
	db := tc.db

	// populateValues tests that populating values works as expected.
	//
	// When the writable flag is false, a read-only transaction is created,
	// standard bucket tests for read-only transactions are performed, and
	// the Commit function is checked to ensure it fails as expected.
	//
	// Otherwise, a read-write transaction is created, the values are
	// written, standard bucket tests for read-write transactions are
	// performed, and then the transaction is either committed or rolled
	// back depending on the flag.
	populateValues := func(writable, rollback bool, putValues map[string]string) bool {
		tx, err := db.BeginReadWriteTx()
		if err != nil {
			tc.t.Errorf("BeginReadWriteTx: unexpected error %v", err)
			return false
		}

		bucket := tx.ReadWriteBucket(bucketKey)
		if bucket == nil {
			tc.t.Errorf("ReadWriteBucket: unexpected nil bucket")
			_ = tx.Rollback()
			return false
		}

		if !testPutValues(tc, bucket, putValues) {
			_ = tx.Rollback()
			return false
		}

		if rollback {
			// Rollback the transaction.
			if err := tx.Rollback(); err != nil {
				tc.t.Errorf("Rollback: unexpected error %v", err)
				return false
			}
		} else {
			// The transaction was not intended to be rolled back so
			// commit it.
			if err := tx.Commit(); err != nil {
				tc.t.Errorf("Commit: unexpected error %v", err)
				return false
			}
		}

		return true
	}

	// checkValues starts a read-only transaction and checks the values.
	checkValues := func(expectedValues map[string]string) bool {
		tx, err := db.BeginReadTx()
		if err != nil {
			tc.t.Errorf("BeginReadTx: unexpected error %v", err)
			return false
		}

		bucket := tx.ReadBucket(bucketKey)
		if bucket == nil {
			tc.t.Errorf("ReadBucket: unexpected nil bucket")
			_ = tx.Rollback()
			return false
		}

		if !testGetValues(tc, bucket, expectedValues) {
			_ = tx.Rollback()
			return false
		}

		// Rollback the read-only transaction.
		if err := tx.Rollback(); err != nil {
			tc.t.Errorf("Commit: unexpected error %v", err)
			return false
		}

		return true
	}

	// deleteValues starts a read-write transaction and deletes the keys
	// in the passed key/value pairs.
	deleteValues := func(values map[string]string) bool {
		tx, err := db.BeginReadWriteTx()
		if err != nil {
			tc.t.Errorf("BeginReadWriteTx: unexpected error %v", err)
			return false
		}

		bucket := tx.ReadWriteBucket(bucketKey)
		if bucket == nil {
			tc.t.Errorf("ReadWriteBucket: unexpected nil bucket")
			_ = tx.Rollback()
			return false
		}

		// Delete the keys and ensure they were deleted.
		if !testDeleteValues(tc, bucket, values) {
			_ = tx.Rollback()
			return false
		}
		if !testGetValues(tc, bucket, rollbackValues(values)) {
			_ = tx.Rollback()
			return false
		}

		// Commit the changes and ensure it was successful.
		if err := tx.Commit(); err != nil {
			tc.t.Errorf("Commit: unexpected error %v", err)
			return false
		}

		return true
	}

	// keyValues holds the keys and values to use when putting values
	// into a bucket.
	var keyValues = map[string]string{
		"umtxkey1": "foo1",
		"umtxkey2": "foo2",
		"umtxkey3": "foo3",
	}

	// Ensure that attempting populating the values using a read-write
	// transaction and then rolling it back yields the expected values.
	if !populateValues(true, true, keyValues) {
		return false
	}
	if !checkValues(rollbackValues(keyValues)) {
		return false
	}

	// Ensure that attempting populating the values using a read-write
	// transaction and then committing it stores the expected values.
	if !populateValues(true, false, keyValues) {
		return false
	}
	if !checkValues(keyValues) {
		return false
	}

	// Clean up the keys.
	if !deleteValues(keyValues) {
		return false
	}

	return true
}

// testNamespaceAndTxInterfaces exercises the full database bucket and
// transaction interfaces against the provided top level bucket key.
func testNamespaceAndTxInterfaces(tc *testContext, namespaceKey string) bool {
	namespaceKeyBytes := []byte(namespaceKey)
	err := walletdb.Update(tc.db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(namespaceKeyBytes)
		return err
	})
	if err != nil {
		tc.t.Errorf("CreateTopLevelBucket: unexpected error: %v", err)
		return false
	}
	defer func() {
		// Remove the namespace now that the tests are done for it.
		err := walletdb.Update(tc.db, func(tx walletdb.ReadWriteTx) error {
			return tx.DeleteTopLevelBucket(namespaceKeyBytes)
		})
		if err != nil {
			tc.t.Errorf("DeleteTopLevelBucket: unexpected error: %v",
				err)
			return
		}
	}()

	if !testManualTxInterface(tc, namespaceKeyBytes) {
		return false
	}

	// keyValues holds the keys and values to use when putting values
	// into a bucket.
	var keyValues = map[string]string{
		"mtxkey1": "foo1",
		"mtxkey2": "foo2",
		"mtxkey3": "foo3",
	}

	// Test the bucket interface via a managed read-write transaction.
	err = walletdb.Update(tc.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(namespaceKeyBytes)
		if bucket == nil {
			return fmt.Errorf("ReadWriteBucket: unexpected nil bucket")
		}

		tc.isWritable = true
		if !testReadWriteBucketInterface(tc, bucket) {
			return errSubTestFail
		}

		if !testPutValues(tc, bucket, keyValues) {
			return errSubTestFail
		}

		return nil
	})
	if err != nil {
		if err != errSubTestFail {
			tc.t.Errorf("Update: unexpected error: %v", err)
		}
		return false
	}

	// Test the bucket interface via a managed read-only transaction.
	err = walletdb.View(tc.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(namespaceKeyBytes)
		if bucket == nil {
			return fmt.Errorf("ReadBucket: unexpected nil bucket")
		}

		if !testGetValues(tc, bucket, keyValues) {
			return errSubTestFail
		}

		return nil
	})
	if err != nil {
		if err != errSubTestFail {
			tc.t.Errorf("View: unexpected error: %v", err)
		}
		return false
	}

	// Ensure errors returned from the user-supplied Update function are
	// returned and the transaction is rolled back.
	errAbort := errors.New("abort update")
	err = walletdb.Update(tc.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(namespaceKeyBytes)
		if bucket == nil {
			return fmt.Errorf("ReadWriteBucket: unexpected nil bucket")
		}

		if err := bucket.Put([]byte("discardkey"), []byte("d")); err != nil {
			return err
		}

		return errAbort
	})
	if err != errAbort {
		tc.t.Errorf("Update: inner function error not returned - got "+
			"%v, want %v", err, errAbort)
		return false
	}
	err = walletdb.View(tc.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(namespaceKeyBytes)
		if bucket == nil {
			return fmt.Errorf("ReadBucket: unexpected nil bucket")
		}

		if v := bucket.Get([]byte("discardkey")); v != nil {
			return fmt.Errorf("aborted update was persisted")
		}

		return nil
	})
	if err != nil {
		tc.t.Errorf("View: unexpected error: %v", err)
		return false
	}

	// Clean up the values stored in the managed transaction tests.
	err = walletdb.Update(tc.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(namespaceKeyBytes)
		if bucket == nil {
			return fmt.Errorf("ReadWriteBucket: unexpected nil bucket")
		}

		if !testDeleteValues(tc, bucket, keyValues) {
			return errSubTestFail
		}

		return nil
	})
	if err != nil {
		if err != errSubTestFail {
			tc.t.Errorf("Update: unexpected error: %v", err)
		}
		return false
	}

	return true
}

// TestInterface performs all interfaces tests for this database driver.
func TestInterface(t Tester, dbType string, args ...interface{}) {
	db, err := walletdb.Create(dbType, args...)
	if err != nil {
		t.Errorf("Failed to create test database (%s) %v", dbType, err)
		return
	}
	defer db.Close()

	// Run all of the interface tests against the database.
	tc := testContext{t: t, db: db}

	// Create a namespace and test the interface for it.
	if !testNamespaceAndTxInterfaces(&tc, "ns1") {
		return
	}

	// Create a second namespace and test the interface for it.
	if !testNamespaceAndTxInterfaces(&tc, "ns2") {
		return
	}
}
