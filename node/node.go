package node

import (
	"context"

	"github.com/lightningnetwork/lnd/lntypes"
)

// InvoiceRequest describes an invoice to be issued by the node.
type InvoiceRequest struct {
	// Amount in satoshis, must be positive.
	Amount int64
	Memo   string
}

func (r *InvoiceRequest) validate(op string) error {
	if r == nil {
		return invalidRequest(op, "missing invoice request")
	}

	if r.Amount <= 0 {
		return invalidRequest(op, "invoice amount must be positive, got %d sat", r.Amount)
	}

	return nil
}

// Invoice is a snapshot of an invoice as reported by the node. The node is
// the store of record, Settled only ever flips from false to true there.
type Invoice struct {
	PaymentRequest string
	RHash          lntypes.Hash
	Settled        bool
	Memo           string
	Value          int64
}

// Status is a read-only snapshot of the node identity and sync state.
type Status struct {
	Alias          string
	IdentityKey    string
	ActiveChannels uint32
	Synced         bool
}

// Node is the control API of a payment node. Implementations perform exactly
// one round trip per call, without retries or caching.
type Node interface {
	Start() error
	Stop() error
	AddInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error)
	LookupInvoice(ctx context.Context, rHash lntypes.Hash) (*Invoice, error)
	GetInfo(ctx context.Context) (*Status, error)
	ChannelBalance(ctx context.Context) (int64, error)
}
