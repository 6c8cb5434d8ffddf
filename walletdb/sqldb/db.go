// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

import (
	"database/sql"
	"errors"
	"io"
	"sync"

	"github.com/zecsuite/zecwallet/walletdb"
)

// rootBucketID is the parent id shared by all top level buckets.  Row ids
// generated by both backends start at one, so zero never collides with a real
// row.
const rootBucketID int64 = 0

// dialect describes what differs between the supported SQL backends.  All
// runtime queries are written with $N placeholders, which the pgx and modernc
// sqlite drivers both accept, so only the schema statement and the existence
// probe vary per backend.
type dialect struct {
	// dbType is the walletdb database type the dialect is registered as.
	dbType string

	// driverName is the database/sql driver name the dialect opens.
	driverName string

	// createSchema creates the kv table if it does not exist yet.
	createSchema string

	// tableExists returns a row if and only if the kv table exists.
	tableExists string
}

var (
	// sqliteDialect stores the kv table in a SQLite database file accessed
	// through the cgo-free modernc driver.
	sqliteDialect = &dialect{
		dbType:     "sqlite",
		driverName: "sqlite",
		createSchema: `CREATE TABLE IF NOT EXISTS kv (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id INTEGER NOT NULL DEFAULT 0,
			key       BLOB NOT NULL,
			value     BLOB,
			is_bucket INTEGER NOT NULL DEFAULT 0,
			sequence  INTEGER NOT NULL DEFAULT 0,
			UNIQUE (parent_id, key)
		)`,
		tableExists: `SELECT name FROM sqlite_master ` +
			`WHERE type = 'table' AND name = 'kv'`,
	}

	// postgresDialect stores the kv table in a PostgreSQL database
	// accessed through the pgx stdlib adapter.
	postgresDialect = &dialect{
		dbType:     "postgres",
		driverName: "pgx",
		createSchema: `CREATE TABLE IF NOT EXISTS kv (
			id        BIGSERIAL PRIMARY KEY,
			parent_id BIGINT NOT NULL DEFAULT 0,
			key       BYTEA NOT NULL,
			value     BYTEA,
			is_bucket BOOLEAN NOT NULL DEFAULT FALSE,
			sequence  BIGINT NOT NULL DEFAULT 0,
			UNIQUE (parent_id, key)
		)`,
		tableExists: `SELECT tablename FROM pg_tables ` +
			`WHERE schemaname = 'public' AND tablename = 'kv'`,
	}
)

// Statements shared by both dialects.  Buckets and key/value pairs live in
// the same table and are told apart by the is_bucket flag, so most statements
// filter on it explicitly.  Key comparisons are bytewise in both backends,
// which gives cursors the same ordering bbolt provides.
const (
	rowQuery = `SELECT id, is_bucket FROM kv ` +
		`WHERE parent_id = $1 AND key = $2`
	valueQuery = `SELECT value FROM kv ` +
		`WHERE parent_id = $1 AND key = $2 AND NOT is_bucket`
	childBucketsQuery = `SELECT id FROM kv ` +
		`WHERE parent_id = $1 AND is_bucket`
	forEachQuery = `SELECT key, value, is_bucket FROM kv ` +
		`WHERE parent_id = $1 ORDER BY key`

	firstQuery = `SELECT key, value, is_bucket FROM kv ` +
		`WHERE parent_id = $1 ORDER BY key LIMIT 1`
	lastQuery = `SELECT key, value, is_bucket FROM kv ` +
		`WHERE parent_id = $1 ORDER BY key DESC LIMIT 1`
	nextQuery = `SELECT key, value, is_bucket FROM kv ` +
		`WHERE parent_id = $1 AND key > $2 ORDER BY key LIMIT 1`
	prevQuery = `SELECT key, value, is_bucket FROM kv ` +
		`WHERE parent_id = $1 AND key < $2 ORDER BY key DESC LIMIT 1`
	seekQuery = `SELECT key, value, is_bucket FROM kv ` +
		`WHERE parent_id = $1 AND key >= $2 ORDER BY key LIMIT 1`

	insertBucketExec = `INSERT INTO kv (parent_id, key, is_bucket) ` +
		`VALUES ($1, $2, TRUE)`
	upsertValueExec = `INSERT INTO kv (parent_id, key, value, is_bucket) ` +
		`VALUES ($1, $2, $3, FALSE) ` +
		`ON CONFLICT (parent_id, key) DO UPDATE SET value = excluded.value`
	deleteRowExec      = `DELETE FROM kv WHERE id = $1`
	deleteChildrenExec = `DELETE FROM kv WHERE parent_id = $1`

	sequenceQuery      = `SELECT sequence FROM kv WHERE id = $1`
	updateSequenceExec = `UPDATE kv SET sequence = $1 WHERE id = $2`
)

// db represents a collection of namespaces which are persisted in the kv
// table of a single SQL database and implements the walletdb.DB interface.
// All database access is performed through transactions.
type db struct {
	// lock admits any number of read transactions or a single read-write
	// transaction.  Serializing writers keeps the backends from ever
	// observing two concurrent writers and spares the sqlite backend from
	// busy errors, at the cost that a goroutine must not open a read
	// transaction while it holds a write transaction.
	lock sync.RWMutex

	sqlDB  *sql.DB
	closed bool
}

// Enforce db implements the walletdb.DB interface.
var _ walletdb.DB = (*db)(nil)

// beginTx starts a new SQL transaction after taking the appropriate side of
// the writer lock.  The lock is released when the returned transaction is
// committed or rolled back.
func (db *db) beginTx(writable bool) (*transaction, error) {
	if writable {
		db.lock.Lock()
	} else {
		db.lock.RLock()
	}
	release := func() {
		if writable {
			db.lock.Unlock()
		} else {
			db.lock.RUnlock()
		}
	}

	if db.closed {
		release()
		return nil, walletdb.ErrDbNotOpen
	}

	sqlTx, err := db.sqlDB.Begin()
	if err != nil {
		release()
		return nil, err
	}

	return &transaction{
		db:       db,
		tx:       sqlTx,
		writable: writable,
		active:   true,
	}, nil
}

// BeginReadTx opens a database read transaction.
//
// This function is part of the walletdb.DB interface implementation.
func (db *db) BeginReadTx() (walletdb.ReadTx, error) {
	tx, err := db.beginTx(false)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// BeginReadWriteTx opens a database read+write transaction.
//
// This function is part of the walletdb.DB interface implementation.
func (db *db) BeginReadWriteTx() (walletdb.ReadWriteTx, error) {
	tx, err := db.beginTx(true)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Copy writes a copy of the database to the provided writer.  The SQL
// backends have no notion of a single database file to stream, so this always
// fails.
//
// This function is part of the walletdb.DB interface implementation.
func (db *db) Copy(w io.Writer) error {
	return errors.New("online backup is not supported by the sql backends")
}

// Close cleanly shuts down the database.  Closing an already closed database
// is a no-op.
//
// This function is part of the walletdb.DB interface implementation.
func (db *db) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	return db.sqlDB.Close()
}

// transaction represents a database transaction.  It can either be read-only
// or read-write and implements the walletdb.ReadWriteTx interface.  The
// transaction provides a root namespace against which all reads and writes
// occur.
type transaction struct {
	db       *db
	tx       *sql.Tx
	writable bool

	// active is false once the transaction has been committed or rolled
	// back, at which point its side of the writer lock has been released.
	active bool
}

// Enforce transaction implements the walletdb.ReadWriteTx interface.
var _ walletdb.ReadWriteTx = (*transaction)(nil)

// finalize marks the transaction done and releases its side of the writer
// lock.  It must be called exactly once.
func (tx *transaction) finalize() {
	tx.active = false
	if tx.writable {
		tx.db.lock.Unlock()
	} else {
		tx.db.lock.RUnlock()
	}
}

// fetchRow returns the row id of the entry stored under the given key of the
// given parent bucket, along with whether that entry is itself a bucket.  A
// missing key is reported as id zero with a nil error.
func (tx *transaction) fetchRow(parentID int64, key []byte) (int64, bool,
	error) {

	var (
		id       int64
		isBucket bool
	)
	err := tx.tx.QueryRow(rowQuery, parentID, key).Scan(&id, &isBucket)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, isBucket, nil
}

// ReadBucket opens the root bucket for read only access.  If the bucket
// described by the key does not exist, nil is returned.
//
// This function is part of the walletdb.ReadTx interface implementation.
func (tx *transaction) ReadBucket(key []byte) walletdb.ReadBucket {
	// Don't return a non-nil interface to a nil pointer.
	if nilBucket := tx.ReadWriteBucket(key); nilBucket != nil {
		return nilBucket
	}
	return nil
}

// ReadWriteBucket opens the root bucket for read/write access.  If the bucket
// described by the key does not exist, nil is returned.
//
// This function is part of the walletdb.ReadWriteTx interface implementation.
func (tx *transaction) ReadWriteBucket(key []byte) walletdb.ReadWriteBucket {
	id, isBucket, err := tx.fetchRow(rootBucketID, key)
	if err != nil || id == 0 || !isBucket {
		return nil
	}
	return &bucket{tx: tx, id: id}
}

// CreateTopLevelBucket creates the top level bucket for a key if it does not
// exist.  The newly created bucket it returned.
//
// This function is part of the walletdb.ReadWriteTx interface implementation.
func (tx *transaction) CreateTopLevelBucket(key []byte) (
	walletdb.ReadWriteBucket, error) {

	if !tx.writable {
		return nil, walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return nil, walletdb.ErrBucketNameRequired
	}

	id, isBucket, err := tx.fetchRow(rootBucketID, key)
	switch {
	case err != nil:
		return nil, err
	case id != 0 && !isBucket:
		return nil, walletdb.ErrIncompatibleValue
	case id != 0:
		return &bucket{tx: tx, id: id}, nil
	}

	id, err = tx.insertBucket(rootBucketID, key)
	if err != nil {
		return nil, err
	}
	return &bucket{tx: tx, id: id}, nil
}

// DeleteTopLevelBucket deletes the top level bucket for a key.  This errors
// if the bucket can not be found or the key keys a single value instead of a
// bucket.
//
// This function is part of the walletdb.ReadWriteTx interface implementation.
func (tx *transaction) DeleteTopLevelBucket(key []byte) error {
	if !tx.writable {
		return walletdb.ErrTxNotWritable
	}

	id, isBucket, err := tx.fetchRow(rootBucketID, key)
	switch {
	case err != nil:
		return err
	case id == 0:
		return walletdb.ErrBucketNotFound
	case !isBucket:
		return walletdb.ErrIncompatibleValue
	}

	return tx.deleteBucket(id)
}

// insertBucket adds a bucket row under the given parent and returns its row
// id.
func (tx *transaction) insertBucket(parentID int64, key []byte) (int64,
	error) {

	if _, err := tx.tx.Exec(insertBucketExec, parentID, key); err != nil {
		return 0, err
	}

	// RETURNING clauses do not behave identically across the backends, so
	// the fresh row id is read back with the ordinary probe.
	id, _, err := tx.fetchRow(parentID, key)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// deleteBucket removes a bucket row and everything stored beneath it.
func (tx *transaction) deleteBucket(id int64) error {
	if err := tx.deleteBucketChildren(id); err != nil {
		return err
	}
	_, err := tx.tx.Exec(deleteRowExec, id)
	return err
}

// deleteBucketChildren removes all rows stored beneath the given bucket row,
// descending into nested buckets first.
func (tx *transaction) deleteBucketChildren(id int64) error {
	// Collect the nested bucket ids up front since the transaction can
	// only run one statement at a time.
	rows, err := tx.tx.Query(childBucketsQuery, id)
	if err != nil {
		return err
	}
	var childIDs []int64
	for rows.Next() {
		var childID int64
		if err := rows.Scan(&childID); err != nil {
			rows.Close()
			return err
		}
		childIDs = append(childIDs, childID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, childID := range childIDs {
		if err := tx.deleteBucketChildren(childID); err != nil {
			return err
		}
	}

	_, err = tx.tx.Exec(deleteChildrenExec, id)
	return err
}

// Commit commits all changes that have been made through the root bucket and
// all of its sub-buckets to persistent storage.
//
// This function is part of the walletdb.ReadWriteTx interface implementation.
func (tx *transaction) Commit() error {
	if !tx.active {
		return walletdb.ErrTxClosed
	}
	if !tx.writable {
		return walletdb.ErrTxNotWritable
	}

	err := tx.tx.Commit()
	tx.finalize()
	return err
}

// Rollback undoes all changes that have been made to the root bucket and all
// of its sub-buckets.
//
// This function is part of the walletdb.ReadTx interface implementation.
func (tx *transaction) Rollback() error {
	if !tx.active {
		return walletdb.ErrTxClosed
	}

	err := tx.tx.Rollback()
	tx.finalize()
	return err
}

// bucket represents a collection of key/value pairs backed by a single bucket
// row of the kv table and implements the walletdb Bucket interfaces.
type bucket struct {
	tx *transaction
	id int64
}

// Enforce bucket implements the walletdb Bucket interfaces.
var _ walletdb.ReadWriteBucket = (*bucket)(nil)

// NestedReadWriteBucket retrieves a nested bucket with the given key.
// Returns nil if the bucket does not exist.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) NestedReadWriteBucket(key []byte) walletdb.ReadWriteBucket {
	id, isBucket, err := b.tx.fetchRow(b.id, key)
	if err != nil || id == 0 || !isBucket {
		return nil
	}
	return &bucket{tx: b.tx, id: id}
}

// NestedReadBucket retrieves a nested bucket with the given key.  Returns nil
// if the bucket does not exist.
//
// This function is part of the walletdb.ReadBucket interface implementation.
func (b *bucket) NestedReadBucket(key []byte) walletdb.ReadBucket {
	// Don't return a non-nil interface to a nil pointer.
	if nilBucket := b.NestedReadWriteBucket(key); nilBucket != nil {
		return nilBucket
	}
	return nil
}

// CreateBucket creates and returns a new nested bucket with the given key.
// Returns ErrBucketExists if the bucket already exists, ErrBucketNameRequired
// if the key is empty, or ErrIncompatibleValue if the key is in use by a
// regular value.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) CreateBucket(key []byte) (walletdb.ReadWriteBucket, error) {
	if !b.tx.writable {
		return nil, walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return nil, walletdb.ErrBucketNameRequired
	}

	id, isBucket, err := b.tx.fetchRow(b.id, key)
	switch {
	case err != nil:
		return nil, err
	case id != 0 && isBucket:
		return nil, walletdb.ErrBucketExists
	case id != 0:
		return nil, walletdb.ErrIncompatibleValue
	}

	id, err = b.tx.insertBucket(b.id, key)
	if err != nil {
		return nil, err
	}
	return &bucket{tx: b.tx, id: id}, nil
}

// CreateBucketIfNotExists creates and returns a new nested bucket with the
// given key if it does not already exist.  Returns ErrBucketNameRequired if
// the key is empty or ErrIncompatibleValue if the key is in use by a regular
// value.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) CreateBucketIfNotExists(key []byte) (walletdb.ReadWriteBucket,
	error) {

	if !b.tx.writable {
		return nil, walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return nil, walletdb.ErrBucketNameRequired
	}

	id, isBucket, err := b.tx.fetchRow(b.id, key)
	switch {
	case err != nil:
		return nil, err
	case id != 0 && !isBucket:
		return nil, walletdb.ErrIncompatibleValue
	case id != 0:
		return &bucket{tx: b.tx, id: id}, nil
	}

	id, err = b.tx.insertBucket(b.id, key)
	if err != nil {
		return nil, err
	}
	return &bucket{tx: b.tx, id: id}, nil
}

// DeleteNestedBucket removes a nested bucket with the given key, along with
// everything stored beneath it.  Returns ErrTxNotWritable if attempted
// against a read-only transaction and ErrBucketNotFound if the specified
// bucket does not exist.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) DeleteNestedBucket(key []byte) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}

	id, isBucket, err := b.tx.fetchRow(b.id, key)
	switch {
	case err != nil:
		return err
	case id == 0:
		return walletdb.ErrBucketNotFound
	case !isBucket:
		return walletdb.ErrIncompatibleValue
	}

	return b.tx.deleteBucket(id)
}

// ForEach invokes the passed function with every key/value pair in the
// bucket.  This includes nested buckets, in which case the value is nil, but
// it does not include the key/value pairs within those nested buckets.
//
// The rows are buffered before the callback runs since the underlying SQL
// transaction supports only one active statement, and callbacks are free to
// issue their own reads and writes.
//
// This function is part of the walletdb.ReadBucket interface implementation.
func (b *bucket) ForEach(fn func(k, v []byte) error) error {
	rows, err := b.tx.tx.Query(forEachQuery, b.id)
	if err != nil {
		return err
	}

	type kvPair struct {
		key   []byte
		value []byte
	}
	var pairs []kvPair
	for rows.Next() {
		var (
			pair     kvPair
			isBucket bool
		)
		err := rows.Scan(&pair.key, &pair.value, &isBucket)
		if err != nil {
			rows.Close()
			return err
		}
		if isBucket {
			pair.value = nil
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, pair := range pairs {
		if err := fn(pair.key, pair.value); err != nil {
			return err
		}
	}
	return nil
}

// Put saves the specified key/value pair to the bucket.  Keys that do not
// already exist are added and keys that already exist are overwritten.
// Returns ErrTxNotWritable if attempted against a read-only transaction,
// ErrKeyRequired if the key is empty, or ErrIncompatibleValue if the key
// names a nested bucket.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}
	if len(key) == 0 {
		return walletdb.ErrKeyRequired
	}

	id, isBucket, err := b.tx.fetchRow(b.id, key)
	switch {
	case err != nil:
		return err
	case id != 0 && isBucket:
		return walletdb.ErrIncompatibleValue
	}

	// Normalize nil values to empty ones so a stored key can always be
	// told apart from a missing one.
	if value == nil {
		value = []byte{}
	}

	_, err = b.tx.tx.Exec(upsertValueExec, b.id, key, value)
	return err
}

// Get returns the value for the given key.  Returns nil if the key does not
// exist in this bucket or names a nested bucket.
//
// This function is part of the walletdb.ReadBucket interface implementation.
func (b *bucket) Get(key []byte) []byte {
	var value []byte
	err := b.tx.tx.QueryRow(valueQuery, b.id, key).Scan(&value)
	if err != nil {
		return nil
	}
	return value
}

// Delete removes the specified key from the bucket.  Deleting a key that does
// not exist does not return an error.  Returns ErrTxNotWritable if attempted
// against a read-only transaction or ErrIncompatibleValue if the key names a
// nested bucket.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Delete(key []byte) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}

	id, isBucket, err := b.tx.fetchRow(b.id, key)
	switch {
	case err != nil:
		return err
	case id == 0:
		return nil
	case isBucket:
		return walletdb.ErrIncompatibleValue
	}

	_, err = b.tx.tx.Exec(deleteRowExec, id)
	return err
}

// ReadCursor returns a new cursor, allowing for iteration over the bucket's
// key/value pairs in forward or backward order.
//
// This function is part of the walletdb.ReadBucket interface implementation.
func (b *bucket) ReadCursor() walletdb.ReadCursor {
	return b.ReadWriteCursor()
}

// ReadWriteCursor returns a new cursor, allowing for iteration over the
// bucket's key/value pairs and nested buckets in forward or backward order.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) ReadWriteCursor() walletdb.ReadWriteCursor {
	return &cursor{bucket: b}
}

// Sequence returns the current integer for the bucket without incrementing
// it.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) Sequence() uint64 {
	var seq int64
	err := b.tx.tx.QueryRow(sequenceQuery, b.id).Scan(&seq)
	if err != nil {
		return 0
	}
	return uint64(seq)
}

// SetSequence updates the sequence number for the bucket.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) SetSequence(v uint64) error {
	if !b.tx.writable {
		return walletdb.ErrTxNotWritable
	}

	_, err := b.tx.tx.Exec(updateSequenceExec, int64(v), b.id)
	return err
}

// NextSequence returns an autoincrementing integer for the bucket.
//
// This function is part of the walletdb.ReadWriteBucket interface
// implementation.
func (b *bucket) NextSequence() (uint64, error) {
	if !b.tx.writable {
		return 0, walletdb.ErrTxNotWritable
	}

	// The bucket's transaction is the sole writer, so a read followed by
	// an update cannot race with another sequence user.
	var seq int64
	err := b.tx.tx.QueryRow(sequenceQuery, b.id).Scan(&seq)
	if err != nil {
		return 0, err
	}
	seq++
	if _, err := b.tx.tx.Exec(updateSequenceExec, seq, b.id); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

// cursor represents a cursor over key/value pairs and nested buckets of a
// bucket and implements the walletdb Cursor interfaces.  Every positioning
// call runs a fresh ordered query against the current key, so iteration
// observes writes made through the same transaction and deleting the current
// entry does not invalidate the cursor.
type cursor struct {
	bucket *bucket

	// currKey is the key the cursor is positioned on, or nil before the
	// cursor has been positioned.  It is retained when iteration runs off
	// either end of the bucket so the cursor can resume from its last
	// position.
	currKey []byte
}

// Enforce cursor implements the walletdb Cursor interfaces.
var _ walletdb.ReadWriteCursor = (*cursor)(nil)

// scanRow runs a single row positioning query and updates the cursor state.
// Exhausted queries leave the current position untouched and report nil/nil
// the way the bbolt cursors do.
func (c *cursor) scanRow(query string, args ...interface{}) ([]byte, []byte) {
	var (
		key      []byte
		value    []byte
		isBucket bool
	)
	row := c.bucket.tx.tx.QueryRow(query, args...)
	if err := row.Scan(&key, &value, &isBucket); err != nil {
		return nil, nil
	}

	c.currKey = key
	if isBucket {
		// Nested buckets are reported with a nil value.
		return key, nil
	}
	return key, value
}

// First positions the cursor at the first key/value pair and returns the
// pair.
//
// This function is part of the walletdb.ReadCursor interface implementation.
func (c *cursor) First() (key, value []byte) {
	return c.scanRow(firstQuery, c.bucket.id)
}

// Last positions the cursor at the last key/value pair and returns the pair.
//
// This function is part of the walletdb.ReadCursor interface implementation.
func (c *cursor) Last() (key, value []byte) {
	return c.scanRow(lastQuery, c.bucket.id)
}

// Next moves the cursor one key/value pair forward and returns the new pair.
//
// This function is part of the walletdb.ReadCursor interface implementation.
func (c *cursor) Next() (key, value []byte) {
	if c.currKey == nil {
		return nil, nil
	}
	return c.scanRow(nextQuery, c.bucket.id, c.currKey)
}

// Prev moves the cursor one key/value pair backward and returns the new pair.
//
// This function is part of the walletdb.ReadCursor interface implementation.
func (c *cursor) Prev() (key, value []byte) {
	if c.currKey == nil {
		return nil, nil
	}
	return c.scanRow(prevQuery, c.bucket.id, c.currKey)
}

// Seek positions the cursor at the passed seek key.  If the key does not
// exist, the cursor is moved to the next key after seek.  Returns the new
// pair.
//
// This function is part of the walletdb.ReadCursor interface implementation.
func (c *cursor) Seek(seek []byte) (key, value []byte) {
	if seek == nil {
		seek = []byte{}
	}
	return c.scanRow(seekQuery, c.bucket.id, seek)
}

// Delete removes the current key/value pair the cursor is at without
// invalidating the cursor.  Returns ErrTxNotWritable if attempted against a
// read-only transaction or ErrIncompatibleValue if the cursor is on a nested
// bucket.
//
// This function is part of the walletdb.ReadWriteCursor interface
// implementation.
func (c *cursor) Delete() error {
	if !c.bucket.tx.writable {
		return walletdb.ErrTxNotWritable
	}
	if c.currKey == nil {
		return nil
	}

	id, isBucket, err := c.bucket.tx.fetchRow(c.bucket.id, c.currKey)
	switch {
	case err != nil:
		return err
	case id == 0:
		return nil
	case isBucket:
		return walletdb.ErrIncompatibleValue
	}

	// The current key is retained so a subsequent Next picks up after the
	// deleted entry.
	_, err = c.bucket.tx.tx.Exec(deleteRowExec, id)
	return err
}
