package pos

import (
	"context"
	"encoding/base64"
	"html/template"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/storefrontd/catalog"
	"github.com/the-lightning-land/storefrontd/checkout"
	"github.com/the-lightning-land/storefrontd/connectivity"
)

const productNotFound = "Product not found"

type indexPage struct {
	Products []catalog.Product
}

type checkoutPage struct {
	Product        *catalog.Product
	PaymentRequest string
	RHash          string
	QRCode         template.URL
	// PollInterval in milliseconds
	PollInterval int64
}

type successPage struct {
	Product *catalog.Product
}

type errorPage struct {
	Product *catalog.Product
	Error   string
}

type checkPaymentResponse struct {
	Settled bool   `json:"settled"`
	Error   string `json:"error,omitempty"`
}

type nodeInfoResponse struct {
	Alias    string `json:"alias"`
	Pubkey   string `json:"pubkey"`
	Channels uint32 `json:"channels"`
	Synced   bool   `json:"synced"`
	Balance  int64  `json:"balance"`
	Error    string `json:"error,omitempty"`
}

type healthResponse struct {
	Node string `json:"node"`
}

func (p *Pos) handleIndexPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.htmlResponse(w, "index", &indexPage{Products: p.catalog.All()}, http.StatusOK)
	}
}

func (p *Pos) handleCheckoutPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := mux.Vars(r)["productId"]

		co, err := p.controller.BeginCheckout(r.Context(), productID)
		if errors.Is(err, checkout.ErrProductNotFound) {
			http.Error(w, productNotFound, http.StatusNotFound)
			return
		} else if err != nil {
			page := &errorPage{Error: err.Error()}
			if co != nil {
				page.Product = co.Product
			}

			p.htmlResponse(w, "error", page, http.StatusBadGateway)
			return
		}

		p.htmlResponse(w, "checkout", &checkoutPage{
			Product:        co.Product,
			PaymentRequest: co.Invoice.PaymentRequest,
			RHash:          co.RHash(),
			QRCode:         template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(co.QRCode)),
			PollInterval:   p.pollInterval.Milliseconds(),
		}, http.StatusOK)
	}
}

func (p *Pos) handleSuccessPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		product := p.catalog.Find(mux.Vars(r)["productId"])
		if product == nil {
			http.Error(w, productNotFound, http.StatusNotFound)
			return
		}

		p.htmlResponse(w, "success", &successPage{Product: product}, http.StatusOK)
	}
}

// handleCheckPayment always answers with 200, a failed lookup is reported as
// unsettled together with the reason.
func (p *Pos) handleCheckPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settled, err := p.controller.PollSettlement(r.Context(), mux.Vars(r)["rHash"])

		res := &checkPaymentResponse{Settled: settled}
		if err != nil {
			res.Settled = false
			res.Error = err.Error()
		}

		p.jsonResponse(w, res, http.StatusOK)
	}
}

func (p *Pos) handleNodeInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary := p.controller.NodeSummary(r.Context())

		res := &nodeInfoResponse{
			Alias:    summary.Alias,
			Pubkey:   summary.Pubkey,
			Channels: summary.Channels,
			Synced:   summary.Synced,
			Balance:  summary.Balance,
		}

		if summary.Err != nil {
			res.Error = summary.Err.Error()
		}

		p.jsonResponse(w, res, http.StatusOK)
	}
}

// handleHealth reports whether the node is reachable. With ?since=<state>
// the request blocks until the state differs from the given one, or the
// health wait elapses, so a dashboard can wait for the node to come back.
func (p *Pos) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.connectivity == nil {
			p.jsonResponse(w, &healthResponse{Node: connectivity.Offline.String()}, http.StatusServiceUnavailable)
			return
		}

		if since := r.URL.Query().Get("since"); since != "" {
			state, err := connectivity.ParseState(since)
			if err != nil {
				p.jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), p.healthWait)
			p.connectivity.WaitForStateChange(ctx, state)
			cancel()
		}

		state := p.connectivity.CurrentState()

		code := http.StatusOK
		if state != connectivity.Online {
			code = http.StatusServiceUnavailable
		}

		p.jsonResponse(w, &healthResponse{Node: state.String()}, code)
	}
}
