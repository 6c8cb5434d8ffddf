// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/zecsuite/zecwallet/wtxmgr"
)

// Start starts the goroutines necessary to manage a wallet.
func (w *Wallet) Start() {
	w.quitMu.Lock()
	select {
	case <-w.quit:
		// Restart the wallet goroutines after shutdown finishes.
		w.WaitForShutdown()
		w.quit = make(chan struct{})
	default:
		// Ignore when the wallet is still running.
		if w.started {
			w.quitMu.Unlock()
			return
		}
		w.started = true
	}
	w.quitMu.Unlock()

	w.wg.Add(1)
	go w.storeMaintainer()
}

// quitChan atomically reads the quit channel.
func (w *Wallet) quitChan() <-chan struct{} {
	w.quitMu.Lock()
	c := w.quit
	w.quitMu.Unlock()
	return c
}

// Stop signals all wallet goroutines to shutdown.
func (w *Wallet) Stop() {
	w.quitMu.Lock()
	quit := w.quit
	w.quitMu.Unlock()

	select {
	case <-quit:
	default:
		close(quit)
	}
}

// ShuttingDown returns whether the wallet is currently in the process of
// shutting down or not.
func (w *Wallet) ShuttingDown() bool {
	select {
	case <-w.quitChan():
		return true
	default:
		return false
	}
}

// WaitForShutdown blocks until all wallet goroutines have finished executing.
func (w *Wallet) WaitForShutdown() {
	w.wg.Wait()
}

// storeMaintainer periodically releases notes locked by expired unmined
// transactions and prunes witnesses older than the rewind horizon.  It must
// be run as a goroutine.
func (w *Wallet) storeMaintainer() {
	defer w.wg.Done()

	quit := w.quitChan()

	w.cfg.MaintenanceTicker.Resume()
	defer w.cfg.MaintenanceTicker.Stop()

	for {
		select {
		case <-w.cfg.MaintenanceTicker.Ticks():
			err := w.maintainStore(context.Background())
			if err != nil {
				log.Errorf("Store maintenance failed: %v", err)
			}

		case <-quit:
			return
		}
	}
}

// maintainStore runs one maintenance pass.  Expired note releases and
// witness pruning both key off the last scanned height, so a wallet that
// has not scanned any blocks yet has nothing to maintain.
func (w *Wallet) maintainStore(ctx context.Context) error {
	return w.Transactionally(ctx, func(write WalletWrite) error {
		extrema, err := write.BlockHeightExtrema(ctx)
		if err != nil {
			return err
		}
		if extrema.IsNone() {
			return nil
		}
		tip := extrema.UnwrapOr(wtxmgr.HeightRange{}).Max

		err = write.ReleaseExpiredNotes(ctx, tip)
		if err != nil {
			return err
		}

		horizon := tip - w.cfg.WitnessRetention
		if err := write.PruneWitnesses(ctx, horizon); err != nil {
			return err
		}

		log.Debugf("Store maintenance pass completed at height %d", tip)
		return nil
	})
}
