package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/storefrontd/catalog"
	"github.com/the-lightning-land/storefrontd/checkout"
	"github.com/the-lightning-land/storefrontd/connectivity"
	"github.com/the-lightning-land/storefrontd/node"
)

// fakeRenderer records the last rendered page instead of producing html.
type fakeRenderer struct {
	mu   sync.Mutex
	page string
	data interface{}
	err  error
}

func (f *fakeRenderer) Render(w io.Writer, page string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.page = page
	f.data = data

	_, err := fmt.Fprintf(w, "<%s>", page)
	return err
}

func (f *fakeRenderer) last() (string, interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.page, f.data
}

type testPos struct {
	pos      *Pos
	mock     *node.MockNode
	monitor  *connectivity.Monitor
	renderer *fakeRenderer
}

func newTestPos(t *testing.T, renderer Renderer) *testPos {
	t.Helper()

	products := catalog.New([]catalog.Product{
		{ID: "tshirt", Name: "T-Shirt", Price: 1500, Description: "Soft cotton"},
		{ID: "sticker", Name: "Sticker", Price: 250},
	})

	mock := node.NewMockNode(&node.MockNodeConfig{
		Status:  &node.Status{Alias: "bob", IdentityKey: "02abcdef", ActiveChannels: 1, Synced: true},
		Balance: 5000,
	})

	monitor := connectivity.NewMonitor(&connectivity.Config{})

	controller, err := checkout.NewController(&checkout.Config{
		Catalog:      products,
		Node:         mock,
		Connectivity: monitor,
	})
	if err != nil {
		t.Fatal(err)
	}

	tp := &testPos{mock: mock, monitor: monitor}

	if renderer == nil {
		tp.renderer = &fakeRenderer{}
		renderer = tp.renderer
	}

	tp.pos, err = NewPos(&Config{
		Controller:   controller,
		Catalog:      products,
		Connectivity: monitor,
		Renderer:     renderer,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("could not create pos: %v", err)
	}

	return tp
}

func (tp *testPos) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	tp.pos.Handler().ServeHTTP(rr, req)

	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("could not decode response %q: %v", rr.Body.String(), err)
	}
}

func TestPos_CheckoutAndPoll(t *testing.T) {
	tp := newTestPos(t, nil)

	rr := tp.get(t, "/checkout/tshirt")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	page, data := tp.renderer.last()
	if page != "checkout" {
		t.Fatalf("expected checkout page, got %v", page)
	}

	co := data.(*checkoutPage)
	if !strings.HasPrefix(co.PaymentRequest, "lnbcrt") {
		t.Errorf("unexpected payment request %q", co.PaymentRequest)
	}
	if len(co.RHash) != 64 {
		t.Errorf("expected 64 hex characters, got %q", co.RHash)
	}
	if !strings.HasPrefix(string(co.QRCode), "data:image/png;base64,") {
		t.Errorf("expected png data url, got %.40q", co.QRCode)
	}
	if co.PollInterval != 10 {
		t.Errorf("expected poll interval in ms, got %d", co.PollInterval)
	}

	var status checkPaymentResponse

	rr = tp.get(t, "/api/check_payment/"+co.RHash)
	decode(t, rr, &status)
	if rr.Code != http.StatusOK || status.Settled || status.Error != "" {
		t.Fatalf("expected unsettled invoice, got %d %+v", rr.Code, status)
	}

	hash, err := node.ParseHash(co.RHash)
	if err != nil {
		t.Fatal(err)
	}
	if err := tp.mock.Settle(hash); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		status = checkPaymentResponse{}
		rr = tp.get(t, "/api/check_payment/"+co.RHash)
		decode(t, rr, &status)
		if !status.Settled {
			t.Errorf("poll %d: expected settled invoice, got %+v", i, status)
		}
	}
}

func TestPos_CheckoutUnknownProduct(t *testing.T) {
	tp := newTestPos(t, nil)

	for _, path := range []string{"/checkout/nonexistent", "/success/nonexistent"} {
		rr := tp.get(t, path)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%v: expected 404, got %d", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "Product not found") {
			t.Errorf("%v: unexpected body %q", path, rr.Body.String())
		}
	}

	if page, _ := tp.renderer.last(); page != "" {
		t.Errorf("expected no page to be rendered, got %v", page)
	}
}

func TestPos_CheckoutNodeFailure(t *testing.T) {
	tp := newTestPos(t, nil)
	tp.mock.Fail(errors.New("connection refused"))

	rr := tp.get(t, "/checkout/sticker")
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}

	page, data := tp.renderer.last()
	if page != "error" {
		t.Fatalf("expected error page, got %v", page)
	}

	errPage := data.(*errorPage)
	if errPage.Error != "connection refused" {
		t.Errorf("expected raw reason, got %q", errPage.Error)
	}
	if errPage.Product == nil || errPage.Product.ID != "sticker" {
		t.Errorf("expected product on error page, got %+v", errPage.Product)
	}
}

func TestPos_CheckPaymentErrors(t *testing.T) {
	tp := newTestPos(t, nil)

	tests := []struct {
		name  string
		rHash string
		fail  error
	}{
		{name: "malformed hash", rHash: "nothex"},
		{name: "unknown invoice", rHash: strings.Repeat("00", 32)},
		{name: "node down", rHash: strings.Repeat("00", 32), fail: errors.New("connection refused")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tp.mock.Fail(tc.fail)
			defer tp.mock.Fail(nil)

			rr := tp.get(t, "/api/check_payment/"+tc.rHash)
			if rr.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rr.Code)
			}

			var status checkPaymentResponse
			decode(t, rr, &status)

			if status.Settled {
				t.Error("expected settled to be false")
			}
			if status.Error == "" {
				t.Error("expected an error")
			}
		})
	}
}

func TestPos_NodeInfo(t *testing.T) {
	tp := newTestPos(t, nil)

	rr := tp.get(t, "/api/node_info")

	var raw map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["error"]; ok {
		t.Errorf("expected no error key, got %v", raw)
	}

	var info nodeInfoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}

	want := nodeInfoResponse{Alias: "bob", Pubkey: "02abcdef", Channels: 1, Synced: true, Balance: 5000}
	if info != want {
		t.Errorf("expected %+v, got %+v", want, info)
	}

	tp.mock.Fail(errors.New("connection refused"))

	info = nodeInfoResponse{}
	rr = tp.get(t, "/api/node_info")
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	decode(t, rr, &info)

	want = nodeInfoResponse{Alias: "unknown", Pubkey: "unknown", Error: "connection refused"}
	if info != want {
		t.Errorf("expected %+v, got %+v", want, info)
	}
}

func TestPos_Health(t *testing.T) {
	tp := newTestPos(t, nil)

	var health healthResponse

	rr := tp.get(t, "/api/health")
	decode(t, rr, &health)
	if rr.Code != http.StatusServiceUnavailable || health.Node != "OFFLINE" {
		t.Errorf("expected offline before any node call, got %d %+v", rr.Code, health)
	}

	// any successful node call marks the node online
	tp.get(t, "/api/node_info")

	rr = tp.get(t, "/api/health")
	decode(t, rr, &health)
	if rr.Code != http.StatusOK || health.Node != "ONLINE" {
		t.Errorf("expected online, got %d %+v", rr.Code, health)
	}
}

func TestPos_RenderFailure(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("broken template")}
	tp := newTestPos(t, renderer)

	rr := tp.get(t, "/")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "<index>") {
		t.Error("expected no partial page")
	}
}

func TestPos_CheckoutRateLimit(t *testing.T) {
	tp := newTestPos(t, nil)

	pos, err := NewPos(&Config{
		Controller:    tp.pos.controller,
		Catalog:       tp.pos.catalog,
		Renderer:      tp.renderer,
		CheckoutRate:  0.001,
		CheckoutBurst: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/checkout/sticker", nil)
		req.RemoteAddr = "10.0.0.1:4242"
		rr := httptest.NewRecorder()
		pos.Handler().ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected burst of two then 429, got %v", codes)
	}

	// other clients have their own budget
	req := httptest.NewRequest(http.MethodGet, "/checkout/sticker", nil)
	req.RemoteAddr = "10.0.0.2:4242"
	rr := httptest.NewRecorder()
	pos.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for another client, got %d", rr.Code)
	}
}

func TestPos_RequestID(t *testing.T) {
	tp := newTestPos(t, nil)

	rr := tp.get(t, "/api/health")
	if len(rr.Header().Get(requestIDHeader)) != 36 {
		t.Errorf("expected a uuid request id, got %q", rr.Header().Get(requestIDHeader))
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		xff        string
		trustProxy bool
		want       string
	}{
		{remoteAddr: "192.168.1.4:5000", want: "192.168.1.4"},
		{remoteAddr: "[::1]:5000", want: "::1"},
		{remoteAddr: "127.0.0.1:5000", xff: "203.0.113.7, 10.0.0.1", trustProxy: true, want: "203.0.113.7"},
		{remoteAddr: "127.0.0.1:5000", xff: "203.0.113.7", trustProxy: true, want: "203.0.113.7"},
		{remoteAddr: "127.0.0.1:5000", xff: "203.0.113.7, 10.0.0.1", want: "127.0.0.1"},
		{remoteAddr: "pipe", want: "pipe"},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}

		if got := extractIP(req, tc.trustProxy); got != tc.want {
			t.Errorf("extractIP(%q, %q, %v) = %q, want %q", tc.remoteAddr, tc.xff, tc.trustProxy, got, tc.want)
		}
	}
}

func TestPos_CheckoutRateLimitIgnoresForwardedFor(t *testing.T) {
	tp := newTestPos(t, nil)

	pos, err := NewPos(&Config{
		Controller:    tp.pos.controller,
		Catalog:       tp.pos.catalog,
		Renderer:      tp.renderer,
		CheckoutRate:  0.001,
		CheckoutBurst: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/checkout/sticker", nil)
		req.RemoteAddr = "10.0.0.1:4242"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rr := httptest.NewRecorder()
		pos.Handler().ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected a fresh X-Forwarded-For not to reset the budget, got %v", codes)
	}
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Unix(1700000000, 0)

	limiter := newIPRateLimiter(0.001, 1)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		limiter.allow(fmt.Sprintf("10.0.0.%d", i))
	}

	if limiter.allow("10.0.0.1") {
		t.Error("expected exhausted client to be limited")
	}

	now = now.Add(limiterIdleTimeout / 2)
	limiter.allow("10.0.0.1")

	now = now.Add(limiterIdleTimeout / 2)
	limiter.allow("10.0.0.200")

	// everyone but the client seen half a timeout ago is gone
	if got := limiter.len(); got != 2 {
		t.Errorf("expected 2 tracked clients after sweep, got %d", got)
	}
}

func TestPos_HealthWaitsForChange(t *testing.T) {
	tp := newTestPos(t, nil)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- tp.get(t, "/api/health?since=OFFLINE")
	}()

	select {
	case <-done:
		t.Fatal("expected request to block while the node is offline")
	case <-time.After(50 * time.Millisecond):
	}

	tp.monitor.Report(true)

	select {
	case rr := <-done:
		var health healthResponse
		decode(t, rr, &health)
		if rr.Code != http.StatusOK || health.Node != "ONLINE" {
			t.Errorf("expected online, got %d %+v", rr.Code, health)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected request to return once the node came online")
	}

	// nothing to wait for when the state already differs
	rr := tp.get(t, "/api/health?since=offline")
	if rr.Code != http.StatusOK {
		t.Errorf("expected immediate 200, got %d", rr.Code)
	}

	rr = tp.get(t, "/api/health?since=sometimes")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown state, got %d", rr.Code)
	}
}

func TestPos_HealthWaitTimesOut(t *testing.T) {
	tp := newTestPos(t, nil)

	pos, err := NewPos(&Config{
		Controller:   tp.pos.controller,
		Catalog:      tp.pos.catalog,
		Connectivity: tp.monitor,
		Renderer:     tp.renderer,
		HealthWait:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health?since=OFFLINE", nil)
	rr := httptest.NewRecorder()
	pos.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected unchanged offline state after the wait, got %d", rr.Code)
	}
}

func TestPos_StreamInvoiceStatus(t *testing.T) {
	tp := newTestPos(t, nil)

	srv := httptest.NewServer(tp.pos.Handler())
	defer srv.Close()

	rr := tp.get(t, "/checkout/tshirt")
	if rr.Code != http.StatusOK {
		t.Fatal(rr.Body.String())
	}
	_, data := tp.renderer.last()
	rHash := data.(*checkoutPage).RHash

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/invoices/" + rHash + "/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("could not dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type    string                      `json:"type"`
		Message invoiceStatusChangedMessage `json:"message"`
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("could not read first message: %v", err)
	}
	if msg.Type != "changed_invoice_status" || msg.Message.RHash != rHash || msg.Message.Settled {
		t.Fatalf("unexpected first message %+v", msg)
	}

	hash, _ := node.ParseHash(rHash)
	if err := tp.mock.Settle(hash); err != nil {
		t.Fatal(err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("could not read settlement: %v", err)
	}
	if !msg.Message.Settled {
		t.Errorf("expected settled message, got %+v", msg)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure after settlement, got %v", err)
	}
}

func TestPos_StreamRejectsMalformedHash(t *testing.T) {
	tp := newTestPos(t, nil)

	rr := tp.get(t, "/api/invoices/zzz/status")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestTemplateRenderer(t *testing.T) {
	renderer, err := NewTemplateRenderer()
	if err != nil {
		t.Fatalf("could not load templates: %v", err)
	}

	tp := newTestPos(t, renderer)

	rr := tp.get(t, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "T-Shirt") || !strings.Contains(body, "0.00001500 BTC") {
		t.Errorf("expected catalog on index page, got %s", body)
	}
	if !strings.Contains(body, `href="/checkout/tshirt"`) {
		t.Errorf("expected checkout link, got %s", body)
	}

	rr = tp.get(t, "/checkout/tshirt")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body = rr.Body.String()
	if !strings.Contains(body, `src="data:image/png;base64,`) {
		t.Errorf("expected inline QR code, got %s", body)
	}
	if !strings.Contains(body, ">lnbcrt15000n1p") {
		t.Errorf("expected payment request, got %s", body)
	}

	var buf bytes.Buffer
	err = renderer.Render(&buf, "error", &errorPage{Error: "<connection refused>"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "&lt;connection refused&gt;") {
		t.Errorf("expected escaped reason, got %s", buf.String())
	}

	if err := renderer.Render(io.Discard, "missing", nil); err == nil {
		t.Error("expected unknown page to fail")
	}
}

func TestPos_Shutdown(t *testing.T) {
	tp := newTestPos(t, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	served := make(chan error, 1)
	go func() {
		served <- tp.pos.Serve(lis)
	}()

	res, err := http.Get("http://" + lis.Addr().String() + "/api/health")
	if err != nil {
		t.Fatalf("could not reach server: %v", err)
	}
	res.Body.Close()

	if err := tp.pos.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}
