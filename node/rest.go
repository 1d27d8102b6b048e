package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-errors/errors"
	"github.com/go-resty/resty/v2"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const macaroonHeader = "Grpc-Metadata-macaroon"

// grpc-gateway status codes lnd puts into REST error bodies
const (
	gatewayCodeInvalidArgument = 3
	gatewayCodeNotFound        = 5
)

var (
	marshalOptions   = protojson.MarshalOptions{UseProtoNames: true}
	unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}
)

// Compile time check for protocol compatibility
var _ Node = (*RestNode)(nil)

type RestNodeConfig struct {
	// Host is the base URL of the REST proxy, e.g. https://localhost:8080
	Host        string
	Credentials *Credentials
	Logger      Logger
}

// RestNode talks to lnd through its REST proxy. Bodies are the lnrpc
// messages in the proto JSON mapping the proxy speaks.
type RestNode struct {
	host        string
	credentials *Credentials
	client      *resty.Client
	log         Logger
}

func NewRestNode(config *RestNodeConfig) (*RestNode, error) {
	if config.Host == "" {
		return nil, errors.New("missing rest host")
	}

	if config.Credentials == nil {
		return nil, errors.New("missing node credentials")
	}

	n := &RestNode{
		host:        strings.TrimSuffix(config.Host, "/"),
		credentials: config.Credentials,
	}

	if config.Logger != nil {
		n.log = config.Logger
	} else {
		n.log = noopLogger{}
	}

	return n, nil
}

func (n *RestNode) Start() error {
	certBytes, err := n.credentials.TLSCert()
	if err != nil {
		return err
	}

	macaroonBytes, err := n.credentials.Macaroon()
	if err != nil {
		return err
	}

	n.client = resty.New().
		SetBaseURL(n.host).
		SetRootCertificateFromString(string(certBytes)).
		SetHeader(macaroonHeader, hex.EncodeToString(macaroonBytes)).
		SetHeader("Accept", "application/json")

	n.log.Infof("Using lnd REST proxy at %v", n.host)

	return nil
}

func (n *RestNode) Stop() error {
	n.client = nil

	return nil
}

func (n *RestNode) AddInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	const op = "AddInvoice"

	if err := req.validate(op); err != nil {
		return nil, err
	}

	body, err := marshalOptions.Marshal(&lnrpc.Invoice{
		Value: req.Amount,
		Memo:  req.Memo,
	})
	if err != nil {
		return nil, invalidRequest(op, "Could not encode invoice: %v", err)
	}

	res := &lnrpc.AddInvoiceResponse{}
	if err := n.call(ctx, op, http.MethodPost, "/v1/invoices", body, res); err != nil {
		return nil, err
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

func (n *RestNode) LookupInvoice(ctx context.Context, rHash lntypes.Hash) (*Invoice, error) {
	res := &lnrpc.Invoice{}
	if err := n.call(ctx, "LookupInvoice", http.MethodGet, "/v1/invoice/"+rHash.String(), nil, res); err != nil {
		return nil, err
	}

	return invoiceFromRpc(rHash, res), nil
}

func (n *RestNode) GetInfo(ctx context.Context) (*Status, error) {
	res := &lnrpc.GetInfoResponse{}
	if err := n.call(ctx, "GetInfo", http.MethodGet, "/v1/getinfo", nil, res); err != nil {
		return nil, err
	}

	return statusFromRpc(res), nil
}

func (n *RestNode) ChannelBalance(ctx context.Context) (int64, error) {
	res := &lnrpc.ChannelBalanceResponse{}
	if err := n.call(ctx, "ChannelBalance", http.MethodGet, "/v1/balance/channels", nil, res); err != nil {
		return 0, err
	}

	return localBalanceFromRpc(res), nil
}

type restErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// older lnd versions
	Error string `json:"error"`
}

func (n *RestNode) call(ctx context.Context, op string, method string, path string, body []byte, out proto.Message) error {
	if n.client == nil {
		return unavailable(op, "lnd REST client for %v is not started", n.host)
	}

	req := n.client.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	n.log.Debugf("%v %v%v", method, n.host, path)

	res, err := req.Execute(method, path)
	if err != nil {
		return unavailable(op, "Could not reach lnd at %v: %v", n.host, err)
	}

	if res.IsError() {
		return restError(op, res)
	}

	if err := unmarshalOptions.Unmarshal(res.Body(), out); err != nil {
		return unavailable(op, "Could not decode %v response: %v", path, err)
	}

	return nil
}

func restError(op string, res *resty.Response) error {
	errBody := &restErrorBody{}
	reason := strings.TrimSpace(string(res.Body()))

	if err := json.Unmarshal(res.Body(), errBody); err == nil {
		if errBody.Message != "" {
			reason = errBody.Message
		} else if errBody.Error != "" {
			reason = errBody.Error
		}
	}

	if reason == "" {
		reason = res.Status()
	}

	switch {
	case res.StatusCode() == http.StatusNotFound || errBody.Code == gatewayCodeNotFound:
		return notFound(op, "%v", reason)
	case res.StatusCode() == http.StatusBadRequest || errBody.Code == gatewayCodeInvalidArgument:
		return invalidRequest(op, "%v", reason)
	default:
		return unavailable(op, "lnd responded with %v: %v", res.StatusCode(), reason)
	}
}

func invoiceFromRpc(rHash lntypes.Hash, invoice *lnrpc.Invoice) *Invoice {
	return &Invoice{
		PaymentRequest: invoice.PaymentRequest,
		RHash:          rHash,
		// Settled is deprecated in favour of State but still populated by older nodes
		Settled: invoice.State == lnrpc.Invoice_SETTLED || invoice.Settled, //nolint:staticcheck
		Memo:    invoice.Memo,
		Value:   invoice.Value,
	}
}

func statusFromRpc(info *lnrpc.GetInfoResponse) *Status {
	return &Status{
		Alias:          info.Alias,
		IdentityKey:    info.IdentityPubkey,
		ActiveChannels: info.NumActiveChannels,
		Synced:         info.SyncedToChain,
	}
}

func localBalanceFromRpc(balance *lnrpc.ChannelBalanceResponse) int64 {
	if balance.LocalBalance != nil {
		return int64(balance.LocalBalance.Sat)
	}

	return balance.Balance //nolint:staticcheck
}
