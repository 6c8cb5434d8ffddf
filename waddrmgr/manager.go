// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/walletdb"
)

// AccountData groups the watch-only material of a single account: the
// incoming viewing key used to recognize outputs and the default payment
// address funds are received on.
type AccountData struct {
	Key     sapling.ExtendedFullViewingKey
	Address sapling.PaymentAddress
}

// AccountKey pairs an account number with its incoming viewing key.
type AccountKey struct {
	Account uint32
	Key     sapling.ExtendedFullViewingKey
}

// Manager provides access to the fixed set of accounts a wallet watches.
// Accounts are numbered contiguously from zero and are defined once, when
// the manager is created.
//
// Viewing keys are decoded and cached when the manager is opened, so key
// queries do not require a database transaction.  Close zeroes the cached
// material.
type Manager struct {
	mtx sync.RWMutex

	chainParams *netparams.Params
	accounts    []AccountData

	closed bool
}

// Create initializes a new account manager in the passed namespace.  The
// provided accounts become accounts 0 through len(accounts)-1 and the set is
// immutable afterwards.  ErrAlreadyExists is returned if the namespace
// already holds a manager.
func Create(ns walletdb.ReadWriteBucket, params *netparams.Params,
	accounts []AccountData) error {

	rows := make([]*accountRow, 0, len(accounts))
	for i := range accounts {
		key, err := accounts[i].Key.Encode(
			params.HRPSaplingExtendedFullViewingKey,
		)
		if err != nil {
			str := fmt.Sprintf("failed to encode viewing key for "+
				"account %d", i)
			return managerError(ErrInput, str, err)
		}
		addr, err := accounts[i].Address.Encode(
			params.HRPSaplingPaymentAddress,
		)
		if err != nil {
			str := fmt.Sprintf("failed to encode address for "+
				"account %d", i)
			return managerError(ErrInput, str, err)
		}
		rows = append(rows, &accountRow{
			viewingKey: key,
			address:    addr,
		})
	}
	return createManager(ns, rows)
}

// Open loads an existing manager from the passed namespace, decoding and
// caching the key material of every stored account.  ErrNoExists is returned
// if the namespace does not hold a manager.
func Open(ns walletdb.ReadBucket, params *netparams.Params) (*Manager, error) {
	if err := openManager(ns); err != nil {
		return nil, err
	}

	var accounts []AccountData
	err := forEachAccountRow(ns, func(account uint32,
		row *accountRow) error {

		// Account numbers are assigned contiguously from zero at
		// creation, so any gap means rows have been lost.
		if account != uint32(len(accounts)) {
			str := fmt.Sprintf("expected account %d, found %d",
				len(accounts), account)
			return managerError(ErrData, str, nil)
		}
		data, err := decodeAccountRow(row, params)
		if err != nil {
			return err
		}
		accounts = append(accounts, *data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		chainParams: params,
		accounts:    accounts,
	}, nil
}

// decodeAccountRow decodes the stored bech32 strings of a single account.  A
// row encoded for a different network fails with ErrWrongNet; any other
// decoding failure is reported as corruption.
func decodeAccountRow(row *accountRow,
	params *netparams.Params) (*AccountData, error) {

	key, err := sapling.DecodeExtendedFullViewingKey(
		params.HRPSaplingExtendedFullViewingKey, row.viewingKey,
	)
	if err != nil {
		if errors.Is(err, sapling.ErrWrongHRP) {
			str := "stored viewing key belongs to a different " +
				"network"
			return nil, managerError(ErrWrongNet, str, err)
		}
		return nil, managerError(ErrData, "malformed stored viewing "+
			"key", err)
	}

	addr, err := sapling.DecodePaymentAddress(
		params.HRPSaplingPaymentAddress, row.address,
	)
	if err != nil {
		if errors.Is(err, sapling.ErrWrongHRP) {
			str := "stored address belongs to a different network"
			return nil, managerError(ErrWrongNet, str, err)
		}
		return nil, managerError(ErrData, "malformed stored address",
			err)
	}

	return &AccountData{Key: key, Address: addr}, nil
}

// ChainParams returns the network parameters for this manager.
func (m *Manager) ChainParams() *netparams.Params {
	// NOTE: No need for mutex here since the net field does not change
	// after the manager instance is created.

	return m.chainParams
}

// Address returns the default payment address of the given account.  The row
// is read and decoded from the database rather than the cache, so corruption
// introduced after the manager was opened is still detected.
// ErrAccountNotFound is returned if the account does not exist.
func (m *Manager) Address(ns walletdb.ReadBucket,
	account uint32) (sapling.PaymentAddress, error) {

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if m.closed {
		return sapling.PaymentAddress{}, managerError(ErrClosed,
			"manager is closed", nil)
	}

	row, err := fetchAccountRow(ns, account)
	if err != nil {
		return sapling.PaymentAddress{}, err
	}
	data, err := decodeAccountRow(row, m.chainParams)
	if err != nil {
		return sapling.PaymentAddress{}, err
	}
	return data.Address, nil
}

// AccountKeys returns the incoming viewing key of every account, ordered by
// account number ascending.
func (m *Manager) AccountKeys() ([]AccountKey, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if m.closed {
		return nil, managerError(ErrClosed, "manager is closed", nil)
	}

	keys := make([]AccountKey, 0, len(m.accounts))
	for i := range m.accounts {
		keys = append(keys, AccountKey{
			Account: uint32(i),
			Key:     m.accounts[i].Key,
		})
	}
	return keys, nil
}

// IsValidAccountKey reports whether the passed viewing key is the one on
// record for the given account.  An unknown account is reported as invalid
// rather than as an error.
func (m *Manager) IsValidAccountKey(account uint32,
	key sapling.ExtendedFullViewingKey) (bool, error) {

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if m.closed {
		return false, managerError(ErrClosed, "manager is closed", nil)
	}

	if account >= uint32(len(m.accounts)) {
		return false, nil
	}
	return m.accounts[account].Key == key, nil
}

// Close cleanly shuts down the manager.  It zeroes the cached viewing key
// material; all further method calls fail with ErrClosed.
func (m *Manager) Close() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.closed {
		return
	}

	for i := range m.accounts {
		m.accounts[i].Key.Zero()
	}
	m.closed = true
}
