package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cretz/bine/torutil/ed25519"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/storefrontd/catalog"
	"github.com/the-lightning-land/storefrontd/checkout"
	"github.com/the-lightning-land/storefrontd/connectivity"
	"github.com/the-lightning-land/storefrontd/locator"
	"github.com/the-lightning-land/storefrontd/node"
	"github.com/the-lightning-land/storefrontd/onion"
	"github.com/the-lightning-land/storefrontd/pos"
	"github.com/the-lightning-land/storefrontd/storedb"

	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

const shutdownTimeout = 5 * time.Second

// storefrontdMain is the true entry point for storefrontd. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func storefrontdMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// Products are loaded once, a broken catalog is fatal
	var products *catalog.Catalog
	if cfg.Catalog != "" {
		products, err = catalog.Load(cfg.Catalog)
	} else {
		products, err = catalog.LoadDefault()
	}
	if err != nil {
		return errors.Wrap(err, "Could not load catalog")
	}

	log.Infof("Loaded %d products.", products.Len())

	// Polar is preferred, the manual configuration is used as a whole otherwise
	l := locator.New(&locator.Config{
		PolarDir: cfg.Polar.Dir,
		Probe:    cfg.Polar.Probe,
		Logger:   log.New().WithField("system", "locator"),
	})

	var found *locator.Endpoint
	if !cfg.Polar.Disable {
		found = l.Resolve(cfg.Polar.Node)
	}

	endpoint := locator.OrDefault(found, manualEndpoint(cfg))

	printBanner(cfg, endpoint)

	// Polar nodes always run on regtest, whatever --network says
	params, err := node.NetworkParams(endpoint.Network)
	if err != nil {
		return errors.Wrap(err, "Invalid network")
	}

	n, err := newNode(cfg, endpoint, params)
	if err != nil {
		return errors.Wrap(err, "Could not create node")
	}

	err = n.Start()
	if err != nil {
		return errors.Wrap(err, "Could not start node")
	}

	log.Infof("Started %v node.", cfg.Lnd.Transport)

	defer func() {
		err := n.Stop()
		if err != nil {
			log.Errorf("Could not properly stop node: %v", err)
		} else {
			log.Info("Stopped node.")
		}
	}()

	monitor := connectivity.NewMonitor(&connectivity.Config{
		Name:   "lnd",
		Logger: log.New().WithField("system", "connectivity"),
	})

	controller, err := checkout.NewController(&checkout.Config{
		Catalog:      products,
		Node:         n,
		MemoPrefix:   cfg.MemoPrefix,
		Network:      params,
		Connectivity: monitor,
		Logger:       log.New().WithField("system", "checkout"),
	})
	if err != nil {
		return errors.Wrap(err, "Could not create checkout controller")
	}

	// The node not answering yet is no reason to refuse serving the store
	probeNode(controller)

	p, err := pos.NewPos(&pos.Config{
		Controller:    controller,
		Catalog:       products,
		Connectivity:  monitor,
		PollInterval:  cfg.Pos.PollInterval,
		CheckoutRate:  cfg.Pos.CheckoutRate,
		CheckoutBurst: cfg.Pos.CheckoutBurst,
		TrustProxy:    cfg.Pos.TrustProxy,
		HealthWait:    cfg.Pos.HealthWait,
		Logger:        log.New().WithField("system", "pos"),
	})
	if err != nil {
		return errors.Wrap(err, "Could not create PoS")
	}

	log.Infof("Created PoS.")

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "Could not listen on %v", cfg.Listen)
	}

	serveErr := make(chan error, 2)

	go func() {
		serveErr <- p.Serve(lis)
	}()

	log.Infof("Starting webstore at http://%v", lis.Addr())
	log.Info("Press Ctrl+C to stop")

	if cfg.Tor.Enable {
		// store.db remembers the onion key so the address survives restarts
		storeDB, err := storedb.Open(cfg.DataDir)
		if err != nil {
			return errors.Wrap(err, "Could not open store.db")
		}

		log.Infof("Opened store.db")

		defer func() {
			err := storeDB.Close()
			if err != nil {
				log.Errorf("Could not close store.db: %v", err)
			} else {
				log.Info("Closed store.db.")
			}
		}()

		key, err := onionKey(storeDB)
		if err != nil {
			return errors.Wrap(err, "Could not get onion service key")
		}

		log.Infof("Onion service will be reachable at http://%v.onion", onion.ServiceID(key))

		service, err := onion.Start(context.Background(), &onion.Config{
			ExePath:     cfg.Tor.Path,
			DataDirBase: cfg.DataDir,
			Key:         key,
			DebugWriter: log.New().WithField("system", "tor").WriterLevel(log.DebugLevel),
			Logger:      log.New().WithField("system", "onion"),
		})
		if err != nil {
			// The store stays reachable locally
			log.Errorf("Could not start onion service: %v", err)
		} else {
			defer func() {
				err := service.Close()
				if err != nil {
					log.Errorf("Could not properly stop onion service: %v", err)
				}
			}()

			go func() {
				serveErr <- p.Serve(service.Listener())
			}()
		}
	}

	// Handle interrupt signals correctly
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Info(sig)
		log.Info("Received an interrupt, stopping webstore...")
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "Failed serving webstore")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = p.Shutdown(ctx)
	if err != nil {
		log.Errorf("%v", err)
	} else {
		log.Info("Stopped PoS.")
	}

	// finish with no error
	return nil
}

// manualEndpoint is the lnd configuration used as a whole when Polar has no
// matching node.
func manualEndpoint(cfg *config) locator.Endpoint {
	return locator.Endpoint{
		Dir:          cfg.Lnd.Dir,
		RestHost:     cfg.Lnd.RestHost,
		GRPCHost:     cfg.Lnd.GRPCHost,
		Network:      cfg.Network,
		TLSCertPath:  cfg.Lnd.TLSCertPath,
		MacaroonPath: cfg.Lnd.MacaroonPath,
	}
}

// endpointCredentials locates the certificate and macaroon of the endpoint,
// only ever from the endpoint itself.
func endpointCredentials(endpoint locator.Endpoint) *node.Credentials {
	credentials := node.CredentialsFromDir(endpoint.Dir, endpoint.Network)
	if endpoint.TLSCertPath != "" {
		credentials.TLSCertPath = endpoint.TLSCertPath
	}
	if endpoint.MacaroonPath != "" {
		credentials.MacaroonPath = endpoint.MacaroonPath
	}

	return credentials
}

func newNode(cfg *config, endpoint locator.Endpoint, params *chaincfg.Params) (node.Node, error) {
	credentials := endpointCredentials(endpoint)

	logger := log.New().WithField("system", "node")

	switch cfg.Lnd.Transport {
	case "rest":
		return node.NewRestNode(&node.RestNodeConfig{
			Host:        endpoint.RestHost,
			Credentials: credentials,
			Logger:      logger,
		})
	case "grpc":
		return node.NewLndNode(&node.LndNodeConfig{
			Uri:         endpoint.GRPCHost,
			Credentials: credentials,
			Logger:      logger,
		})
	case "mock":
		return node.NewMockNode(&node.MockNodeConfig{
			InvoicePrefix: node.InvoicePrefix(params),
			Logger:        logger,
		}), nil
	default:
		return nil, errors.Errorf("Unknown transport %v", cfg.Lnd.Transport)
	}
}

// onionKey returns the stored onion service key, generating and storing one
// on first use.
func onionKey(db *storedb.DB) (ed25519.PrivateKey, error) {
	stored, err := db.OnionPrivateKey()
	if err != nil {
		return nil, err
	}

	if stored != nil {
		return ed25519.PrivateKey(stored), nil
	}

	key, err := onion.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	err = db.SetOnionPrivateKey(key)
	if err != nil {
		return nil, err
	}

	log.Infof("Generated new onion service key")

	return key, nil
}

func printBanner(cfg *config, endpoint locator.Endpoint) {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("    LIGHTNING WEBSTORE")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	if polarNode := endpoint.Polar; polarNode != nil {
		fmt.Printf("Polar: Connected to node '%s' in network '%s' (REST port %d)\n",
			polarNode.Name, polarNode.NetworkName, polarNode.RestPort)
		fmt.Printf("  LND dir:   %s\n", endpoint.Dir)
		fmt.Printf("  REST host: %s\n", endpoint.RestHost)
	} else {
		fmt.Println("Polar not detected -- using manual configuration.")
		fmt.Printf("  LND dir:   %s\n", endpoint.Dir)
		fmt.Printf("  REST host: %s\n", endpoint.RestHost)
		fmt.Println()
		fmt.Println("To fix: set LND_DIR and REST_HOST environment variables,")
		fmt.Printf("or make sure Polar is running with an LND node named '%s'.\n", cfg.Polar.Node)
	}

	fmt.Println()
}

// probeNode reports who the store is connected to, a failure is only a warning.
func probeNode(controller *checkout.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary := controller.NodeSummary(ctx)
	if summary.Err != nil {
		log.Warnf("Could not connect to LND: %v", summary.Err)
		log.Warn("Make sure your LND node is running!")
		return
	}

	log.Infof("Connected to LND node: %v", summary.Alias)
	log.Infof("Channels: %v", summary.Channels)
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := storefrontdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			log.WithError(err).Println("Failed running storefrontd.")
		}
		os.Exit(1)
	}
}
