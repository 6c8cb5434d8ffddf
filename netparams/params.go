// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

// Params is used to group parameters for various networks such as the main
// network and test networks.  Wallet state is only meaningful from the
// Sapling activation height onward, so every network carries it along with
// the bech32 human-readable parts used to encode Sapling payment addresses
// and extended full viewing keys.
type Params struct {
	// Name is the human-readable identifier for the network.
	Name string

	// SaplingActivationHeight is the height at which the Sapling network
	// upgrade activated.  Blocks below this height carry no shielded state
	// the wallet can track.
	SaplingActivationHeight int32

	// HRPSaplingPaymentAddress is the bech32 human-readable part for
	// Sapling payment addresses on this network.
	HRPSaplingPaymentAddress string

	// HRPSaplingExtendedFullViewingKey is the bech32 human-readable part
	// for Sapling extended full viewing keys on this network.
	HRPSaplingExtendedFullViewingKey string
}

// MainNetParams contains parameters specific to the main network.
var MainNetParams = Params{
	Name:                             "mainnet",
	SaplingActivationHeight:          419200,
	HRPSaplingPaymentAddress:         "zs",
	HRPSaplingExtendedFullViewingKey: "zxviews",
}

// TestNet3Params contains parameters specific to the test network (version 3).
var TestNet3Params = Params{
	Name:                             "testnet3",
	SaplingActivationHeight:          280000,
	HRPSaplingPaymentAddress:         "ztestsapling",
	HRPSaplingExtendedFullViewingKey: "zxviewtestsapling",
}

// RegressionNetParams contains parameters specific to the regression test
// network.  Sapling is active from the first block so tests can build
// shielded state without replaying mainnet history.
var RegressionNetParams = Params{
	Name:                             "regtest",
	SaplingActivationHeight:          1,
	HRPSaplingPaymentAddress:         "zregtestsapling",
	HRPSaplingExtendedFullViewingKey: "zxviewregtestsapling",
}
