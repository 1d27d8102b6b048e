package node

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/go-errors/errors"
)

// NetworkParams returns the chain parameters for a bitcoin network name as
// lnd spells it in its data directory.
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, errors.Errorf("unknown bitcoin network %q", network)
	}
}

// InvoicePrefix is the human readable part every payment request issued on
// the given network starts with, e.g. "lnbcrt" on regtest.
func InvoicePrefix(params *chaincfg.Params) string {
	// signet shares the testnet address prefix but not the invoice prefix
	if params.Name == chaincfg.SigNetParams.Name {
		return "lntbs"
	}

	return "ln" + params.Bech32HRPSegwit
}
