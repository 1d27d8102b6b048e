package locator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
)

// Polar persists the state of all its networks in a single file below its
// data directory. Only the fields needed to find an lnd node are decoded.
const polarNetworksFile = "networks.json"

// polarStatus mirrors Polar's Status enum.
type polarStatus int

const (
	polarStarting polarStatus = iota
	polarStarted
	polarStopping
	polarStopped
	polarError
)

type polarNetworks struct {
	Networks []polarNetwork `json:"networks"`
}

type polarNetwork struct {
	ID     int         `json:"id"`
	Name   string      `json:"name"`
	Status polarStatus `json:"status"`
	Path   string      `json:"path"`
	Nodes  struct {
		Lightning []polarLightningNode `json:"lightning"`
	} `json:"nodes"`
}

type polarLightningNode struct {
	Name           string         `json:"name"`
	Implementation string         `json:"implementation"`
	Ports          map[string]int `json:"ports"`
}

// PolarNode is an lnd node found in a Polar network.
type PolarNode struct {
	Name        string
	NetworkID   int
	NetworkName string
	Started     bool
	RestPort    int
	GRPCPort    int
	// Dir is the lnd directory holding tls.cert and data/chain
	Dir string
}

// RestHost is the base URL of the node's REST proxy as published on the host.
func (n *PolarNode) RestHost() string {
	return "https://127.0.0.1:" + strconv.Itoa(n.RestPort)
}

// GRPCHost is the host:port of the node's gRPC interface as published on the host.
func (n *PolarNode) GRPCHost() string {
	if n.GRPCPort == 0 {
		return ""
	}

	return "127.0.0.1:" + strconv.Itoa(n.GRPCPort)
}

var errNoPolarNode = errors.New("no matching polar node")

// findPolarNodes returns every complete lnd node named label, best candidate
// first: started networks before others, newer networks before older ones.
// Whether a node may be used is up to the caller.
func findPolarNodes(polarDir string, label string) ([]*PolarNode, error) {
	networksDir := filepath.Join(polarDir, "networks")

	payload, err := os.ReadFile(filepath.Join(networksDir, polarNetworksFile))
	if err != nil {
		return nil, errors.Errorf("Could not read polar networks: %v", err)
	}

	networks := &polarNetworks{}
	if err := json.Unmarshal(payload, networks); err != nil {
		return nil, errors.Errorf("Could not parse polar networks: %v", err)
	}

	var found []*PolarNode

	for _, network := range networks.Networks {
		for _, node := range network.Nodes.Lightning {
			if !strings.EqualFold(node.Name, label) || !strings.EqualFold(node.Implementation, "LND") {
				continue
			}

			networkPath := network.Path
			if networkPath == "" {
				networkPath = filepath.Join(networksDir, strconv.Itoa(network.ID))
			}

			candidate := &PolarNode{
				Name:        node.Name,
				NetworkID:   network.ID,
				NetworkName: network.Name,
				Started:     network.Status == polarStarted,
				RestPort:    node.Ports["rest"],
				GRPCPort:    node.Ports["grpc"],
				Dir:         filepath.Join(networkPath, "volumes", "lnd", node.Name),
			}

			// half discovered nodes are never handed out
			if candidate.RestPort == 0 {
				continue
			}

			found = append(found, candidate)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Started != found[j].Started {
			return found[i].Started
		}

		return found[i].NetworkID > found[j].NetworkID
	})

	return found, nil
}
