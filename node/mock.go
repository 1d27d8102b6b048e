package node

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/lntypes"
)

// Compile time check for protocol compatibility
var _ Node = (*MockNode)(nil)

type MockNodeConfig struct {
	// InvoicePrefix of generated payment requests, see InvoicePrefix
	InvoicePrefix string
	Status        *Status
	Balance       int64
	Logger        Logger
}

// MockNode keeps invoices in memory. It is used for offline development and
// in tests, payments are simulated with Settle.
type MockNode struct {
	mu       sync.Mutex
	invoices map[lntypes.Hash]*Invoice
	prefix   string
	status   Status
	balance  int64
	failure  error
	log      Logger
}

func NewMockNode(config *MockNodeConfig) *MockNode {
	n := &MockNode{
		invoices: make(map[lntypes.Hash]*Invoice),
		prefix:   config.InvoicePrefix,
		balance:  config.Balance,
		status: Status{
			Alias:  "mock",
			Synced: true,
		},
	}

	if n.prefix == "" {
		n.prefix = "lnbcrt"
	}

	if config.Status != nil {
		n.status = *config.Status
	}

	if config.Logger != nil {
		n.log = config.Logger
	} else {
		n.log = noopLogger{}
	}

	return n
}

func (n *MockNode) Start() error {
	n.log.Infof("Using mock node, invoices are settled with Settle")
	return nil
}

func (n *MockNode) Stop() error {
	return nil
}

// Fail makes every following call fail as if the node was unreachable.
// Passing nil restores normal operation.
func (n *MockNode) Fail(reason error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.failure = reason
}

// Settle simulates a payment of the invoice.
func (n *MockNode) Settle(rHash lntypes.Hash) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	invoice, ok := n.invoices[rHash]
	if !ok {
		return notFound("Settle", "unable to locate invoice %v", rHash)
	}

	invoice.Settled = true

	n.log.Infof("Mock: settled invoice %v", rHash)

	return nil
}

func (n *MockNode) AddInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	const op = "AddInvoice"

	if err := req.validate(op); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failure != nil {
		return nil, unavailable(op, "%v", n.failure)
	}

	var preimage lntypes.Preimage
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, unavailable(op, "Could not generate preimage: %v", err)
	}

	rHash := preimage.Hash()

	invoice := &Invoice{
		// Not a valid bolt11 string, only shaped like one
		PaymentRequest: fmt.Sprintf("%s%dn1p%s", n.prefix, req.Amount*10, rHash.String()[:52]),
		RHash:          rHash,
		Memo:           req.Memo,
		Value:          req.Amount,
	}

	n.invoices[rHash] = invoice

	copied := *invoice
	return &copied, nil
}

func (n *MockNode) LookupInvoice(ctx context.Context, rHash lntypes.Hash) (*Invoice, error) {
	const op = "LookupInvoice"

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failure != nil {
		return nil, unavailable(op, "%v", n.failure)
	}

	invoice, ok := n.invoices[rHash]
	if !ok {
		return nil, notFound(op, "unable to locate invoice")
	}

	copied := *invoice
	return &copied, nil
}

func (n *MockNode) GetInfo(ctx context.Context) (*Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failure != nil {
		return nil, unavailable("GetInfo", "%v", n.failure)
	}

	status := n.status
	return &status, nil
}

func (n *MockNode) ChannelBalance(ctx context.Context) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failure != nil {
		return 0, unavailable("ChannelBalance", "%v", n.failure)
	}

	return n.balance, nil
}
