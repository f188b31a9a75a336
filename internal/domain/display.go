package domain

// DisplayEvent is the dashboard-facing shape of an Event.
type DisplayEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Kind         EventKind `json:"kind"`
	Token        string    `json:"token"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Amount       string    `json:"amount"`
	Time         string    `json:"time"`
	Timestamp    string    `json:"timestamp"`
	TimestampMs  int64     `json:"timestampMs"`
	TickNo       string    `json:"tickNo"`
	TickNumber   int64     `json:"tickNumber"`
	Price        *int64    `json:"price,omitempty"`
	Shares       *int64    `json:"shares,omitempty"`
	Issuer       string    `json:"issuer,omitempty"`
	TxID         string    `json:"txId,omitempty"`
	MoneyFlew    *bool     `json:"moneyFlew,omitempty"`
	InputHex     string    `json:"inputHex,omitempty"`
	SignatureHex string    `json:"signatureHex,omitempty"`
}

// AnnotatedEvent is a DisplayEvent with its whale classification.
type AnnotatedEvent struct {
	DisplayEvent
	IsWhale       bool    `json:"isWhale"`
	NumericAmount float64 `json:"numericAmount"`
}
