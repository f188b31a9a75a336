package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// Envelope is one QX event as delivered by the EasyConnect webhook.
type Envelope struct {
	ProcedureTypeValue int                `json:"ProcedureTypeValue"`
	ProcedureTypeName  string             `json:"ProcedureTypeName"`
	RawTransaction     *RawTransaction    `json:"RawTransaction"`
	ParsedTransaction  *ParsedTransaction `json:"ParsedTransaction,omitempty"`
}

// RawTransaction wraps the on-chain transaction.
type RawTransaction struct {
	Transaction *WireTransaction `json:"transaction"`
	Timestamp   json.RawMessage  `json:"timestamp"`
	MoneyFlew   bool             `json:"moneyFlew"`
}

// WireTransaction is the Qubic transaction as sent by the webhook.
type WireTransaction struct {
	SourceID     string     `json:"sourceId"`
	DestID       string     `json:"destId"`
	Amount       flexAmount `json:"amount"`
	TickNumber   int64      `json:"tickNumber"`
	InputType    *int       `json:"inputType,omitempty"`
	InputSize    *int       `json:"inputSize,omitempty"`
	InputHex     string     `json:"inputHex,omitempty"`
	SignatureHex string     `json:"signatureHex,omitempty"`
	TxID         string     `json:"txId"`
}

// ParsedTransaction carries the QX-specific fields decoded by EasyConnect.
type ParsedTransaction struct {
	IssuerAddress  string `json:"IssuerAddress,omitempty"`
	AssetName      string `json:"AssetName,omitempty"`
	Price          *int64 `json:"Price,omitempty"`
	NumberOfShares *int64 `json:"NumberOfShares,omitempty"`
}

// flexAmount accepts an amount sent either as a JSON string or a number.
// Numbers are rendered in plain decimal notation so exponents never reach
// the database.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexAmount(strings.TrimSpace(s))
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("amount %s: %w", b, err)
	}
	*a = flexAmount(d.String())
	return nil
}

// decodeEnvelopes accepts one envelope or an array of them. raw holds each
// envelope's original bytes for the raw_payload column.
func decodeEnvelopes(body []byte) (envs []Envelope, raw []json.RawMessage, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil, fmt.Errorf("empty body: %w", domain.ErrInvalidPayload)
	}

	if body[0] == '[' {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, nil, fmt.Errorf("decode array: %v: %w", err, domain.ErrInvalidPayload)
		}
	} else {
		raw = []json.RawMessage{json.RawMessage(body)}
	}

	envs = make([]Envelope, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &envs[i]); err != nil {
			return nil, nil, fmt.Errorf("decode envelope %d: %v: %w", i, err, domain.ErrInvalidPayload)
		}
	}
	return envs, raw, nil
}

// timestampValue turns the raw timestamp field into a value the normalizer
// understands.
func timestampValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}
