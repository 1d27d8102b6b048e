package pos

type messageType string

const (
	changedInvoiceStatus messageType = "changed_invoice_status"
)

type envelope struct {
	Type    messageType `json:"type"`
	Message interface{} `json:"message"`
}

type invoiceStatusChangedMessage struct {
	RHash   string `json:"r_hash"`
	Settled bool   `json:"settled"`
	Error   string `json:"error,omitempty"`
}
