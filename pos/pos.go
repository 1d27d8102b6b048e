package pos

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-errors/errors"
	"github.com/gobuffalo/packr/v2"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/storefrontd/catalog"
	"github.com/the-lightning-land/storefrontd/checkout"
	"github.com/the-lightning-land/storefrontd/connectivity"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultHealthWait   = 30 * time.Second
)

type Config struct {
	Controller   *checkout.Controller
	Catalog      *catalog.Catalog
	Connectivity connectivity.Reporter
	// Renderer of the html pages, defaults to the bundled templates
	Renderer Renderer
	// PollInterval of the settlement stream and the checkout page
	PollInterval time.Duration
	// CheckoutRate limits invoice creation per client ip and second, zero
	// disables the limit
	CheckoutRate  float64
	CheckoutBurst int
	// TrustProxy takes the client ip from X-Forwarded-For, only set it when
	// the store runs behind a reverse proxy
	TrustProxy bool
	// HealthWait bounds how long /api/health?since=<state> blocks
	HealthWait time.Duration
	Logger     Logger
}

// Pos is the point of sale a buyer interacts with.
type Pos struct {
	log          Logger
	controller   *checkout.Controller
	catalog      *catalog.Catalog
	connectivity connectivity.Reporter
	renderer     Renderer
	pollInterval time.Duration
	healthWait   time.Duration
	limiter      *ipRateLimiter
	router       *mux.Router
	server       *http.Server
}

func NewPos(config *Config) (*Pos, error) {
	if config.Controller == nil {
		return nil, errors.New("missing checkout controller")
	}

	if config.Catalog == nil {
		return nil, errors.New("missing catalog")
	}

	pos := &Pos{
		controller:   config.Controller,
		catalog:      config.Catalog,
		connectivity: config.Connectivity,
		renderer:     config.Renderer,
		pollInterval: config.PollInterval,
		healthWait:   config.HealthWait,
	}

	if config.Logger != nil {
		pos.log = config.Logger
	} else {
		pos.log = noopLogger{}
	}

	if pos.pollInterval <= 0 {
		pos.pollInterval = defaultPollInterval
	}

	if pos.healthWait <= 0 {
		pos.healthWait = defaultHealthWait
	}

	if pos.renderer == nil {
		renderer, err := NewTemplateRenderer()
		if err != nil {
			return nil, errors.Errorf("Could not load templates: %v", err)
		}

		pos.renderer = renderer
	}

	pos.router = mux.NewRouter()
	pos.router.Use(pos.loggingMiddleware)

	pos.router.Handle("/", pos.handleIndexPage()).Methods(http.MethodGet)
	pos.router.Handle("/success/{productId}", pos.handleSuccessPage()).Methods(http.MethodGet)

	checkoutRouter := pos.router.PathPrefix("/checkout").Subrouter()
	if config.CheckoutRate > 0 {
		pos.limiter = newIPRateLimiter(config.CheckoutRate, config.CheckoutBurst)
		checkoutRouter.Use(rateLimitMiddleware(pos.limiter, config.TrustProxy, pos.log))
	}
	checkoutRouter.Handle("/{productId}", pos.handleCheckoutPage()).Methods(http.MethodGet)

	api := pos.router.PathPrefix("/api").Subrouter()
	api.Handle("/check_payment/{rHash}", pos.handleCheckPayment()).Methods(http.MethodGet)
	api.Handle("/node_info", pos.handleNodeInfo()).Methods(http.MethodGet)
	api.Handle("/health", pos.handleHealth()).Methods(http.MethodGet)
	api.Handle("/invoices/{rHash}/status", pos.handleStreamInvoiceStatus()).Methods(http.MethodGet)

	box := packr.New("static", "./static")

	pos.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(box)))

	pos.server = &http.Server{
		Handler:           pos.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return pos, nil
}

// Handler exposes the router, e.g. to serve it through an onion service.
func (p *Pos) Handler() http.Handler {
	return p.router
}

// Serve blocks serving the point of sale on the listener until Shutdown is
// called. It may be called for several listeners at once.
func (p *Pos) Serve(l net.Listener) error {
	p.log.Infof("Serving point of sale on %v", l.Addr())

	err := p.server.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Errorf("Unable to serve point of sale: %v", err)
	}

	return nil
}

// Shutdown stops all listeners and waits for open requests to finish.
// Websocket connections are not waited for.
func (p *Pos) Shutdown(ctx context.Context) error {
	err := p.server.Shutdown(ctx)
	if err != nil {
		return errors.Errorf("Could not properly shut down point of sale: %v", err)
	}

	return nil
}
