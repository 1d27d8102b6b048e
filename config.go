package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultDataDir      = "~/.storefrontd"
	defaultListen       = "127.0.0.1:5000"
	defaultMemoPrefix   = "Webstore: "
	defaultNetwork      = "regtest"
	defaultPolarDir     = "~/.polar"
	defaultPolarNode    = "bob"
	defaultLndDir       = "~/bootcamp-code/day3/bob"
	defaultRestHost     = "https://localhost:8082"
	defaultGRPCHost     = "localhost:10009"
	defaultTransport    = "rest"
	defaultPollInterval = 2 * time.Second
	defaultHealthWait   = 30 * time.Second
)

type polarConfig struct {
	Dir     string `long:"dir" description:"Polar data directory"`
	Node    string `long:"node" description:"Name of the Polar lnd node to use"`
	Disable bool   `long:"disable" description:"Do not look for Polar networks"`
	Probe   bool   `long:"probe" description:"Only accept Polar nodes whose REST port is reachable"`
}

// lndConfig is only used when no Polar node was found, and then as a whole.
type lndConfig struct {
	Dir          string `long:"dir" env:"LND_DIR" description:"lnd directory holding tls.cert and data/chain"`
	RestHost     string `long:"resthost" env:"REST_HOST" description:"URL of the lnd REST interface"`
	GRPCHost     string `long:"grpchost" env:"GRPC_HOST" description:"host:port of the lnd gRPC interface"`
	Transport    string `long:"transport" description:"How to talk to lnd" choice:"rest" choice:"grpc" choice:"mock"`
	TLSCertPath  string `long:"tlscertpath" description:"Path to tls.cert, overrides the one in the lnd directory"`
	MacaroonPath string `long:"macaroonpath" description:"Path to the macaroon, overrides the admin macaroon in the lnd directory"`
}

type posConfig struct {
	PollInterval  time.Duration `long:"pollinterval" description:"How often pages and streams poll for settlement"`
	CheckoutRate  float64       `long:"checkoutrate" description:"Invoices a single client may create per second, 0 disables the limit"`
	CheckoutBurst int           `long:"checkoutburst" description:"Invoices a single client may create at once"`
	TrustProxy    bool          `long:"trustproxy" description:"Take the client ip from X-Forwarded-For, only when running behind a reverse proxy"`
	HealthWait    time.Duration `long:"healthwait" description:"Longest time /api/health?since=<state> waits for a change"`
}

type torConfig struct {
	Enable bool   `long:"enable" description:"Also serve the store through a Tor onion service"`
	Path   string `long:"path" description:"Path to the tor binary"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Start a profiling server on this address"`
}

type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Debug       bool   `long:"debug" description:"Start in debug mode"`
	DataDir     string `long:"datadir" description:"Directory for store.db and tor data"`
	Listen      string `long:"listen" description:"Address the store is served on"`
	Catalog     string `long:"catalog" description:"Product catalog as .json or .yaml, defaults to the bundled one"`
	MemoPrefix  string `long:"memoprefix" description:"Prefix of every invoice memo"`
	Network     string `long:"network" description:"Bitcoin network of the node" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"simnet" choice:"signet"`

	Polar     polarConfig     `group:"Polar" namespace:"polar"`
	Lnd       lndConfig       `group:"lnd" namespace:"lnd"`
	Pos       posConfig       `group:"Point of sale" namespace:"pos"`
	Tor       torConfig       `group:"Tor" namespace:"tor"`
	Profiling profilingConfig `group:"Profiling" namespace:"profiling"`
}

func defaultConfig() config {
	return config{
		DataDir:    defaultDataDir,
		Listen:     defaultListen,
		MemoPrefix: defaultMemoPrefix,
		Network:    defaultNetwork,
		Polar: polarConfig{
			Dir:  defaultPolarDir,
			Node: defaultPolarNode,
		},
		Lnd: lndConfig{
			Dir:       defaultLndDir,
			RestHost:  defaultRestHost,
			GRPCHost:  defaultGRPCHost,
			Transport: defaultTransport,
		},
		Pos: posConfig{
			PollInterval:  defaultPollInterval,
			CheckoutRate:  1,
			CheckoutBurst: 5,
			HealthWait:    defaultHealthWait,
		},
	}
}

// loadConfig initializes the config with defaults, then overrides them with
// environment variables and command line flags.
func loadConfig() (*config, error) {
	return parseConfig(os.Args[1:], flags.Default)
}

func parseConfig(args []string, options flags.Options) (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, options)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	var err error

	for _, path := range []*string{
		&cfg.DataDir,
		&cfg.Catalog,
		&cfg.Polar.Dir,
		&cfg.Lnd.Dir,
		&cfg.Lnd.TLSCertPath,
		&cfg.Lnd.MacaroonPath,
		&cfg.Tor.Path,
	} {
		*path, err = expandPath(*path)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Pos.PollInterval <= 0 {
		return nil, errors.Errorf("poll interval must be positive, got %v", cfg.Pos.PollInterval)
	}

	if cfg.Pos.HealthWait <= 0 {
		return nil, errors.Errorf("health wait must be positive, got %v", cfg.Pos.HealthWait)
	}

	if cfg.Pos.CheckoutRate < 0 {
		return nil, errors.Errorf("checkout rate must not be negative, got %v", cfg.Pos.CheckoutRate)
	}

	return &cfg, nil
}

// expandPath resolves a leading ~ to the home directory of the current user.
func expandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "could not expand %v", path)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
