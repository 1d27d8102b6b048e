package node

import (
	"crypto/x509"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
)

const (
	defaultTLSCertFilename  = "tls.cert"
	defaultMacaroonFilename = "admin.macaroon"
)

// Credentials locates the TLS certificate and macaroon used to authenticate
// against an lnd node.
type Credentials struct {
	TLSCertPath  string
	MacaroonPath string
}

// CredentialsFromDir follows the lnd directory layout, with the admin
// macaroon below data/chain/bitcoin/<network>.
func CredentialsFromDir(dir string, network string) *Credentials {
	return &Credentials{
		TLSCertPath:  filepath.Join(dir, defaultTLSCertFilename),
		MacaroonPath: filepath.Join(dir, "data", "chain", "bitcoin", network, defaultMacaroonFilename),
	}
}

// TLSCert reads the PEM encoded certificate.
func (c *Credentials) TLSCert() ([]byte, error) {
	certBytes, err := os.ReadFile(c.TLSCertPath)
	if err != nil {
		return nil, errors.Errorf("Could not read tls cert: %v", err)
	}

	return certBytes, nil
}

// CertPool returns a pool containing only the node certificate, lnd certs
// are self-signed.
func (c *Credentials) CertPool() (*x509.CertPool, error) {
	certBytes, err := c.TLSCert()
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(certBytes); !ok {
		return nil, errors.Errorf("could not parse tls cert %v", c.TLSCertPath)
	}

	return pool, nil
}

// Macaroon reads the binary macaroon.
func (c *Credentials) Macaroon() ([]byte, error) {
	macaroonBytes, err := os.ReadFile(c.MacaroonPath)
	if err != nil {
		return nil, errors.Errorf("Could not read macaroon: %v", err)
	}

	return macaroonBytes, nil
}
