package checkout

import (
	"context"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/go-errors/errors"
	"github.com/the-lightning-land/storefrontd/catalog"
	"github.com/the-lightning-land/storefrontd/node"
)

const defaultMemoPrefix = "Webstore: "

// ErrProductNotFound is returned when a checkout is started for a product
// that is not in the catalog.
var ErrProductNotFound = errors.New("Product not found")

// ConnectivityReporter is told about every node call whether the node was
// reachable.
type ConnectivityReporter interface {
	Report(reachable bool)
}

type Config struct {
	Catalog *catalog.Catalog
	Node    node.Node
	// MemoPrefix is put in front of the product name in invoice memos
	MemoPrefix string
	// Network the node is expected to issue invoices for, may be nil
	Network      *chaincfg.Params
	Connectivity ConnectivityReporter
	Logger       Logger
}

// Controller turns purchase intents into payable invoices and reports on
// their settlement. It holds no invoice state, the node is the store of
// record and invoices are addressed by their payment hash only.
type Controller struct {
	catalog       *catalog.Catalog
	node          node.Node
	memoPrefix    string
	invoicePrefix string
	connectivity  ConnectivityReporter
	log           Logger
}

func NewController(config *Config) (*Controller, error) {
	if config.Catalog == nil {
		return nil, errors.New("missing catalog")
	}

	if config.Node == nil {
		return nil, errors.New("missing node")
	}

	c := &Controller{
		catalog:      config.Catalog,
		node:         config.Node,
		memoPrefix:   config.MemoPrefix,
		connectivity: config.Connectivity,
	}

	if c.memoPrefix == "" {
		c.memoPrefix = defaultMemoPrefix
	}

	if config.Network != nil {
		c.invoicePrefix = node.InvoicePrefix(config.Network)
	}

	if config.Logger != nil {
		c.log = config.Logger
	} else {
		c.log = noopLogger{}
	}

	return c, nil
}

// Checkout is a single purchase attempt.
type Checkout struct {
	Product *catalog.Product
	Invoice *node.Invoice
	// QRCode is the PNG encoded payment request
	QRCode []byte

	state State
	err   error
}

func (c *Checkout) State() State {
	return c.state
}

// Err is the reason a checkout failed.
func (c *Checkout) Err() error {
	return c.err
}

// RHash is the hex identifier used to poll for settlement.
func (c *Checkout) RHash() string {
	if c.Invoice == nil {
		return ""
	}

	return c.Invoice.RHash.String()
}

func (c *Checkout) transition(next State) error {
	if !c.state.canTransitionTo(next) {
		return errors.Errorf("%v: %v -> %v", errInvalidTransition, c.state, next)
	}

	c.state = next

	return nil
}

func (c *Checkout) fail(err error) {
	_ = c.transition(Failed)
	c.err = err
}

// BeginCheckout issues an invoice for the product. An unknown product yields
// ErrProductNotFound and no checkout. Any node failure is terminal for this
// attempt: the checkout is returned in the Failed state along with the error.
func (c *Controller) BeginCheckout(ctx context.Context, productID string) (*Checkout, error) {
	product := c.catalog.Find(productID)
	if product == nil {
		return nil, ErrProductNotFound
	}

	co := &Checkout{
		Product: product,
		state:   Requested,
	}

	invoice, err := c.node.AddInvoice(ctx, &node.InvoiceRequest{
		Amount: product.Price,
		Memo:   c.memoPrefix + product.Name,
	})
	c.report(err)
	if err != nil {
		c.log.Errorf("Could not create invoice for %v: %v", product.ID, err)
		co.fail(err)
		return co, err
	}

	co.Invoice = invoice
	if err := co.transition(Issued); err != nil {
		return co, err
	}

	if c.invoicePrefix != "" && !strings.HasPrefix(strings.ToLower(invoice.PaymentRequest), c.invoicePrefix) {
		c.log.Warnf("Invoice %v does not start with %v, is the node on another network?",
			invoice.RHash, c.invoicePrefix)
	}

	co.QRCode, err = RenderCode(invoice.PaymentRequest)
	if err != nil {
		c.log.Errorf("Could not render QR code for invoice %v: %v", invoice.RHash, err)
		co.fail(err)
		return co, err
	}

	if err := co.transition(Pending); err != nil {
		return co, err
	}

	c.log.Infof("Issued invoice %v for %v over %v sat", invoice.RHash, product.ID, product.Price)

	return co, nil
}

// PollSettlement reports whether the invoice has been paid. Errors are
// transient, they always come with settled=false and the invoice may be
// polled again.
func (c *Controller) PollSettlement(ctx context.Context, rHash string) (bool, error) {
	hash, err := node.ParseHash(rHash)
	if err != nil {
		return false, err
	}

	invoice, err := c.node.LookupInvoice(ctx, hash)
	c.report(err)
	if err != nil {
		c.log.Debugf("Could not look up invoice %v: %v", hash, err)
		return false, err
	}

	return invoice.Settled, nil
}

// Refresh polls the node for the checkout's invoice and moves a pending
// checkout to Settled once the node reports the payment.
func (c *Controller) Refresh(ctx context.Context, co *Checkout) error {
	if co.state != Pending {
		return nil
	}

	settled, err := c.PollSettlement(ctx, co.RHash())
	if err != nil {
		return err
	}

	if settled {
		c.log.Infof("Invoice %v for %v settled", co.RHash(), co.Product.ID)
		return co.transition(Settled)
	}

	return nil
}

// report feeds the outcome of a node call to the connectivity reporter.
// Errors the node answered with prove it is reachable.
func (c *Controller) report(err error) {
	if c.connectivity == nil {
		return
	}

	c.connectivity.Report(err == nil || !errors.Is(err, node.ErrNodeUnavailable))
}
