package node

import (
	"context"
	"encoding/hex"

	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Compile time check for protocol compatibility
var _ Node = (*LndNode)(nil)

type LndNodeConfig struct {
	// Uri is the host:port of the gRPC interface
	Uri         string
	Credentials *Credentials
	Logger      Logger
}

// LndNode talks to lnd over gRPC.
type LndNode struct {
	uri              string
	tlsCredentials   credentials.TransportCredentials
	macaroonMetadata metadata.MD
	conn             *grpc.ClientConn
	client           lnrpc.LightningClient
	log              Logger
}

func NewLndNode(config *LndNodeConfig) (*LndNode, error) {
	if config.Uri == "" {
		return nil, errors.New("missing grpc host")
	}

	if config.Credentials == nil {
		return nil, errors.New("missing node credentials")
	}

	cert, err := config.Credentials.CertPool()
	if err != nil {
		return nil, err
	}

	macaroonBytes, err := config.Credentials.Macaroon()
	if err != nil {
		return nil, err
	}

	n := &LndNode{
		uri:              config.Uri,
		tlsCredentials:   credentials.NewClientTLSFromCert(cert, ""),
		macaroonMetadata: metadata.Pairs("macaroon", hex.EncodeToString(macaroonBytes)),
	}

	if config.Logger != nil {
		n.log = config.Logger
	} else {
		n.log = noopLogger{}
	}

	return n, nil
}

func (n *LndNode) Start() error {
	var err error
	n.conn, err = grpc.NewClient(n.uri, grpc.WithTransportCredentials(n.tlsCredentials))
	if err != nil {
		return errors.Errorf("Could not connect to lightning node: %v", err)
	}

	n.client = lnrpc.NewLightningClient(n.conn)

	n.log.Infof("Using lnd gRPC interface at %v", n.uri)

	return nil
}

func (n *LndNode) Stop() error {
	if n.conn == nil {
		return nil
	}

	err := n.conn.Close()
	if err != nil {
		return errors.Errorf("Could not close connection: %v", err)
	}

	n.conn = nil
	n.client = nil

	return nil
}

func (n *LndNode) AddInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	const op = "AddInvoice"

	if err := req.validate(op); err != nil {
		return nil, err
	}

	if n.client == nil {
		return nil, n.notStarted(op)
	}

	res, err := n.client.AddInvoice(n.authenticated(ctx), &lnrpc.Invoice{
		Value: req.Amount,
		Memo:  req.Memo,
	})
	if err != nil {
		return nil, grpcError(op, err)
	}

	rHash, err := lntypes.MakeHash(res.RHash)
	if err != nil {
		return nil, unavailable(op, "Node returned invalid payment hash: %v", err)
	}

	return &Invoice{
		PaymentRequest: res.PaymentRequest,
		RHash:          rHash,
		Settled:        false,
		Memo:           req.Memo,
		Value:          req.Amount,
	}, nil
}

func (n *LndNode) LookupInvoice(ctx context.Context, rHash lntypes.Hash) (*Invoice, error) {
	const op = "LookupInvoice"

	if n.client == nil {
		return nil, n.notStarted(op)
	}

	res, err := n.client.LookupInvoice(n.authenticated(ctx), &lnrpc.PaymentHash{
		RHash: rHash[:],
	})
	if err != nil {
		return nil, grpcError(op, err)
	}

	return invoiceFromRpc(rHash, res), nil
}

func (n *LndNode) GetInfo(ctx context.Context) (*Status, error) {
	const op = "GetInfo"

	if n.client == nil {
		return nil, n.notStarted(op)
	}

	res, err := n.client.GetInfo(n.authenticated(ctx), &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, grpcError(op, err)
	}

	return statusFromRpc(res), nil
}

func (n *LndNode) ChannelBalance(ctx context.Context) (int64, error) {
	const op = "ChannelBalance"

	if n.client == nil {
		return 0, n.notStarted(op)
	}

	res, err := n.client.ChannelBalance(n.authenticated(ctx), &lnrpc.ChannelBalanceRequest{})
	if err != nil {
		return 0, grpcError(op, err)
	}

	return localBalanceFromRpc(res), nil
}

func (n *LndNode) authenticated(ctx context.Context) context.Context {
	return metadata.NewOutgoingContext(ctx, n.macaroonMetadata)
}

func (n *LndNode) notStarted(op string) error {
	return unavailable(op, "lnd gRPC client for %v is not started", n.uri)
}

func grpcError(op string, err error) error {
	errStatus, ok := status.FromError(err)
	if !ok {
		return unavailable(op, "%v", err)
	}

	switch errStatus.Code() {
	case codes.NotFound:
		return notFound(op, "%v", errStatus.Message())
	case codes.InvalidArgument:
		return invalidRequest(op, "%v", errStatus.Message())
	default:
		return unavailable(op, "%v", errStatus.Message())
	}
}
