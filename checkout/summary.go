package checkout

import (
	"context"
)

// Summary describes the node the store is backed by. Fields the node could
// not provide keep their placeholder values.
type Summary struct {
	Alias    string
	Pubkey   string
	Channels uint32
	Synced   bool
	Balance  int64
	// Err is the first reason the node could not be queried
	Err error
}

func placeholderSummary() *Summary {
	return &Summary{
		Alias:  "unknown",
		Pubkey: "unknown",
	}
}

// NodeSummary asks the node for its identity and spendable channel balance.
// It never fails, a node that cannot be reached yields placeholders and the
// reason in Err.
func (c *Controller) NodeSummary(ctx context.Context) *Summary {
	summary := placeholderSummary()

	status, err := c.node.GetInfo(ctx)
	c.report(err)
	if err != nil {
		c.log.Warnf("Could not get node info: %v", err)
		summary.Err = err
		return summary
	}

	if status.Alias != "" {
		summary.Alias = status.Alias
	}
	if status.IdentityKey != "" {
		summary.Pubkey = status.IdentityKey
	}
	summary.Channels = status.ActiveChannels
	summary.Synced = status.Synced

	balance, err := c.node.ChannelBalance(ctx)
	c.report(err)
	if err != nil {
		c.log.Warnf("Could not get channel balance: %v", err)
		summary.Err = err
		return summary
	}

	summary.Balance = balance

	return summary
}
