package onion

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/cretz/bine/control"
	"github.com/cretz/bine/tor"
	"github.com/cretz/bine/torutil/ed25519"
	"github.com/go-errors/errors"
)

const defaultPublishTimeout = 3 * time.Minute

type Config struct {
	// ExePath of the tor binary, looked up in PATH when empty
	ExePath string
	// DataDirBase is where tor keeps its temporary data directory
	DataDirBase string
	// DebugWriter receives tor's own log output
	DebugWriter io.Writer
	// PublishTimeout bounds how long publishing the descriptor may take
	PublishTimeout time.Duration
	// Key of the service, a throwaway key is generated when nil
	Key    ed25519.PrivateKey
	Logger Logger
}

// Service is a v3 onion service run by an embedded tor process. It is a
// net.Listener reachable on port 80 of its onion address.
type Service struct {
	tor   *tor.Tor
	onion *tor.OnionService
	log   Logger
}

// Start launches tor and publishes the onion service.
func Start(ctx context.Context, config *Config) (*Service, error) {
	s := &Service{}

	if config.Logger != nil {
		s.log = config.Logger
	} else {
		s.log = noopLogger{}
	}

	dataDirBase := config.DataDirBase
	if dataDirBase == "" {
		dataDirBase = os.TempDir()
	}

	var err error

	s.tor, err = tor.Start(ctx, &tor.StartConf{
		ExePath:         config.ExePath,
		TempDataDirBase: dataDirBase,
		DebugWriter:     config.DebugWriter,
	})
	if err != nil {
		return nil, errors.Errorf("Could not start tor: %v", err)
	}

	s.log.Infof("Started tor")

	timeout := config.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	listenCtx, listenCancel := context.WithTimeout(ctx, timeout)
	defer listenCancel()

	s.log.Infof("Publishing onion service...")

	conf := &tor.ListenConf{
		Version3:    true,
		Key:         control.GenKey(control.KeyAlgoED25519V3),
		RemotePorts: []int{80},
	}

	if config.Key != nil {
		conf.Key = config.Key.KeyPair()
	}

	s.onion, err = s.tor.Listen(listenCtx, conf)
	if err != nil {
		_ = s.tor.Close()
		return nil, errors.Errorf("Could not create onion service: %v", err)
	}

	s.log.Infof("Try %v", s.URL())

	return s, nil
}

func (s *Service) ID() string {
	return s.onion.ID
}

func (s *Service) URL() string {
	return onionURL(s.onion.ID)
}

func onionURL(id string) string {
	return "http://" + id + ".onion"
}

// Listener accepts connections coming in through the onion service.
func (s *Service) Listener() net.Listener {
	return s.onion
}

func (s *Service) Close() error {
	err := s.onion.Close()
	if err != nil {
		s.log.Warnf("Could not properly close onion service: %v", err)
	}

	err = s.tor.Close()
	if err != nil {
		return errors.Errorf("Could not properly stop tor: %v", err)
	}

	s.log.Infof("Stopped tor")

	return nil
}
