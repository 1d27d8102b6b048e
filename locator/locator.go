package locator

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-errors/errors"
)

const defaultProbeTimeout = 500 * time.Millisecond

// Source tells where an endpoint came from.
type Source string

const (
	SourcePolar  Source = "polar"
	SourceManual Source = "manual"
)

// polarChainNetwork is the only chain Polar runs its nodes on.
const polarChainNetwork = "regtest"

// Endpoint is everything needed to reach one lnd node. All fields always
// come from the same source.
type Endpoint struct {
	// Dir is the lnd directory holding the tls certificate and macaroons
	Dir      string
	RestHost string
	GRPCHost string
	// Network selects the macaroon directory below Dir
	Network string
	// TLSCertPath and MacaroonPath override the files found in Dir
	TLSCertPath  string
	MacaroonPath string
	Source       Source
	// Polar is the node the endpoint was discovered from, nil for manual ones
	Polar *PolarNode
}

// OrDefault returns the discovered endpoint, or the manual one if nothing
// was discovered. The two are never mixed.
func OrDefault(found *Endpoint, manual Endpoint) Endpoint {
	if found != nil {
		return *found
	}

	manual.Source = SourceManual

	return manual
}

type Config struct {
	// PolarDir is Polar's data directory, usually ~/.polar
	PolarDir string
	// Probe enables a TCP dial of the REST port before a node is accepted
	Probe        bool
	ProbeTimeout time.Duration
	Logger       Logger
}

// Locator discovers lnd nodes of a locally running Polar network.
type Locator struct {
	polarDir     string
	probe        bool
	probeTimeout time.Duration
	log          Logger
}

func New(config *Config) *Locator {
	l := &Locator{
		polarDir:     config.PolarDir,
		probe:        config.Probe,
		probeTimeout: config.ProbeTimeout,
	}

	if l.probeTimeout <= 0 {
		l.probeTimeout = defaultProbeTimeout
	}

	if config.Logger != nil {
		l.log = config.Logger
	} else {
		l.log = noopLogger{}
	}

	return l
}

// Resolve returns the endpoint of the node named label, or nil if there is
// no running Polar network with such a node. Not finding one is expected.
func (l *Locator) Resolve(label string) *Endpoint {
	node, err := l.FindPolarNode(label)
	if err != nil {
		l.log.Debugf("Polar node %v not found: %v", label, err)
		return nil
	}

	return &Endpoint{
		Dir:      node.Dir,
		RestHost: node.RestHost(),
		GRPCHost: node.GRPCHost(),
		Network:  polarChainNetwork,
		Source:   SourcePolar,
		Polar:    node,
	}
}

// FindPolarNode returns the best usable Polar node named label. Nodes of
// networks Polar does not report as started are only used when the probe
// reaches them.
func (l *Locator) FindPolarNode(label string) (*PolarNode, error) {
	if l.polarDir == "" {
		return nil, errors.New("no polar directory configured")
	}

	candidates, err := findPolarNodes(l.polarDir, label)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if err := l.usable(candidate); err != nil {
			l.log.Debugf("Skipping polar node %v in network %v: %v", candidate.Name, candidate.NetworkName, err)
			continue
		}

		return candidate, nil
	}

	return nil, errNoPolarNode
}

func (l *Locator) usable(node *PolarNode) error {
	if _, err := os.Stat(filepath.Join(node.Dir, "tls.cert")); err != nil {
		return errors.Errorf("no tls cert: %v", err)
	}

	if !l.probe {
		if !node.Started {
			return errors.Errorf("network %v is not running", node.NetworkName)
		}
		return nil
	}

	start := time.Now()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(node.RestPort)), l.probeTimeout)
	if err != nil {
		return errors.Errorf("rest port %v unreachable: %v", node.RestPort, err)
	}
	_ = conn.Close()

	l.log.Debugf("Probed polar node %v in %v", node.Name, time.Since(start))

	return nil
}
