package pos

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/storefrontd/node"
)

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	done chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		done: make(chan struct{}),
	}

	go c.readPump()

	return c
}

// readPump discards everything the client sends and notices when it goes away.
func (c *client) readPump() {
	defer close(c.done)

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *client) send(v interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) close(reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// handleStreamInvoiceStatus pushes the settlement status of an invoice
// whenever it changes, until the invoice is settled or the client leaves.
func (p *Pos) handleStreamInvoiceStatus() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		rHash, err := node.ParseHash(mux.Vars(r)["rHash"])
		if err != nil {
			p.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			p.log.Warnf("Could not upgrade to websocket: %v", err)
			return
		}

		c := newClient(conn)

		reason := p.streamInvoiceStatus(c, rHash.String())

		c.close(reason)
	}
}

func (p *Pos) streamInvoiceStatus(c *client, rHash string) string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var last *invoiceStatusChangedMessage

	for {
		settled, err := p.controller.PollSettlement(ctx, rHash)

		msg := &invoiceStatusChangedMessage{RHash: rHash, Settled: settled}
		if err != nil {
			msg.Error = err.Error()
		}

		if last == nil || *last != *msg {
			err := c.send(&envelope{Type: changedInvoiceStatus, Message: msg})
			if err != nil {
				p.log.Debugf("Could not send status of %v: %v", rHash, err)
				return "write failed"
			}

			last = msg
		}

		if settled {
			return "settled"
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "client left"
		}
	}
}
