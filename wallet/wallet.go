// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/wtxmgr"
)

// Namespace bucket keys.
var (
	waddrmgrNamespaceKey = []byte("waddrmgr")
	wtxmgrNamespaceKey   = []byte("wtxmgr")
)

const (
	// DefaultAnchorOffset is the default confirmation depth an anchor
	// trails the chain tip by.  Spend proofs built against an anchor this
	// deep survive the short reorganizations that occur in normal
	// operation.
	DefaultAnchorOffset = 10

	// DefaultWitnessRetention is the default number of blocks of witness
	// history the maintenance loop keeps below the chain tip.  It covers
	// every height the anchor policy can choose, with a wide margin for
	// deep rewinds.
	DefaultWitnessRetention = 100

	// DefaultMaintenanceInterval is the default cadence of the
	// maintenance loop.
	DefaultMaintenanceInterval = time.Minute
)

// Config tunes an opened wallet.  The zero value of any field selects its
// default.
type Config struct {
	// AnchorOffset is the confirmation depth used by
	// TargetAndAnchorHeights.
	AnchorOffset int32

	// WitnessRetention is the number of blocks of witness history the
	// maintenance loop retains below the chain tip.
	WitnessRetention int32

	// MaintenanceTicker drives the maintenance loop.  Tests substitute a
	// forced ticker to trigger sweeps deterministically.
	MaintenanceTicker ticker.Ticker
}

// fillDefaults populates unset config fields.
func (cfg *Config) fillDefaults() {
	if cfg.AnchorOffset <= 0 {
		cfg.AnchorOffset = DefaultAnchorOffset
	}
	if cfg.WitnessRetention <= 0 {
		cfg.WitnessRetention = DefaultWitnessRetention
	}
	if cfg.MaintenanceTicker == nil {
		cfg.MaintenanceTicker = ticker.New(DefaultMaintenanceInterval)
	}
}

// Wallet is the persistent state of a shielded wallet: the fixed account
// set managed by waddrmgr and the chain-derived note state managed by
// wtxmgr, sharing one database so grouped mutations commit atomically.
//
// Wallet implements WalletRead directly; mutations go through
// Transactionally, which binds a WalletWrite to a single database
// transaction.
type Wallet struct {
	db          walletdb.DB
	chainParams *netparams.Params
	cfg         Config

	// Manager holds the accounts and their key material.
	Manager *waddrmgr.Manager

	// TxStore holds blocks, transactions, notes and witnesses.
	TxStore *wtxmgr.Store

	started bool
	quit    chan struct{}
	quitMu  sync.Mutex
	wg      sync.WaitGroup
}

// A compile time check to ensure that Wallet implements the WalletRead
// interface.
var _ WalletRead = (*Wallet)(nil)

// Create initializes the wallet state in the passed database: the account
// manager with the given accounts and an empty note store.  The database
// must not already contain a wallet.
func Create(db walletdb.DB, params *netparams.Params,
	accounts []waddrmgr.AccountData) error {

	return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		addrmgrNs, err := tx.CreateTopLevelBucket(waddrmgrNamespaceKey)
		if err != nil {
			return fmt.Errorf("failed to create address manager "+
				"namespace: %w", err)
		}
		txmgrNs, err := tx.CreateTopLevelBucket(wtxmgrNamespaceKey)
		if err != nil {
			return fmt.Errorf("failed to create note store "+
				"namespace: %w", err)
		}

		err = waddrmgr.Create(addrmgrNs, params, accounts)
		if err != nil {
			return err
		}
		return wtxmgr.Create(txmgrNs)
	})
}

// Open loads an existing wallet from the passed database.  The caller
// remains responsible for closing the database; Close only releases the
// wallet's own resources.
func Open(db walletdb.DB, params *netparams.Params,
	cfg Config) (*Wallet, error) {

	cfg.fillDefaults()

	var (
		addrMgr *waddrmgr.Manager
		txStore *wtxmgr.Store
	)
	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		addrmgrNs := tx.ReadBucket(waddrmgrNamespaceKey)
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)
		if addrmgrNs == nil || txmgrNs == nil {
			return fmt.Errorf("database has not been initialized "+
				"as a wallet for %s", params.Name)
		}

		var err error
		addrMgr, err = waddrmgr.Open(addrmgrNs, params)
		if err != nil {
			return err
		}
		txStore, err = wtxmgr.Open(txmgrNs, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	keys, err := addrMgr.AccountKeys()
	if err != nil {
		return nil, err
	}
	log.Infof("Opened wallet with %d %s on %s", len(keys),
		pickNoun(len(keys), "account", "accounts"), params.Name)

	return &Wallet{
		db:          db,
		chainParams: params,
		cfg:         cfg,
		Manager:     addrMgr,
		TxStore:     txStore,
		quit:        make(chan struct{}),
	}, nil
}

// ChainParams returns the network parameters the wallet was opened with.
func (w *Wallet) ChainParams() *netparams.Params {
	return w.chainParams
}

// Close releases the wallet's resources: the maintenance loop is stopped
// and the cached account key material is zeroed.  The database itself is
// owned and closed by the caller.
func (w *Wallet) Close() {
	w.Stop()
	w.WaitForShutdown()
	w.Manager.Close()
}
