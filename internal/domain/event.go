package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// NativeToken is the symbol used for events that carry no asset name.
const NativeToken = "QUBIC"

// BaseTokens are the tokens the dashboard always lists first, in this order.
var BaseTokens = []string{"QUBIC", "QMINE", "GARTH", "MATILDA", "CFB", "QXMR"}

// EventKind is the closed set of QX procedures the dashboard understands.
// Anything else is KindOther.
type EventKind int

const (
	KindOther EventKind = iota
	KindBidOrderAdd
	KindAskOrderAdd
	KindOwnershipTransfer
	KindAssetIssue
	KindBidCancel
	KindAskCancel
	KindManagementRightsTransfer

	// NumKinds is the number of kinds including KindOther. Arrays indexed by
	// EventKind use it as their length.
	NumKinds
)

var kindNames = [NumKinds]string{
	KindOther:                    "Other",
	KindBidOrderAdd:              "AddToBidOrder",
	KindAskOrderAdd:              "AddToAskOrder",
	KindOwnershipTransfer:        "TransferShareOwnershipAndPossession",
	KindAssetIssue:               "IssueAsset",
	KindBidCancel:                "RemoveFromBidOrder",
	KindAskCancel:                "RemoveFromAskOrder",
	KindManagementRightsTransfer: "TransferShareManagementRights",
}

// ParseEventKind maps a QX procedure name to its kind. Unknown names map to
// KindOther.
func ParseEventKind(name string) EventKind {
	for k := KindBidOrderAdd; k < NumKinds; k++ {
		if kindNames[k] == name {
			return k
		}
	}
	return KindOther
}

// String returns the QX procedure name of the kind.
func (k EventKind) String() string {
	if k < 0 || k >= NumKinds {
		return kindNames[KindOther]
	}
	return kindNames[k]
}

// Chart category keys. Both cancel kinds share one category.
const (
	CategoryBidOrders     = "bidOrders"
	CategoryAskOrders     = "askOrders"
	CategoryTransfers     = "transfers"
	CategoryIssues        = "issues"
	CategoryCancels       = "cancels"
	CategoryMgmtTransfers = "mgmtTransfers"
	CategoryOther         = "other"
)

// Categories lists the chart categories in display order.
var Categories = []string{
	CategoryBidOrders, CategoryAskOrders, CategoryTransfers, CategoryIssues,
	CategoryCancels, CategoryMgmtTransfers, CategoryOther,
}

// Category returns the chart category key for the kind.
func (k EventKind) Category() string {
	switch k {
	case KindBidOrderAdd:
		return CategoryBidOrders
	case KindAskOrderAdd:
		return CategoryAskOrders
	case KindOwnershipTransfer:
		return CategoryTransfers
	case KindAssetIssue:
		return CategoryIssues
	case KindBidCancel, KindAskCancel:
		return CategoryCancels
	case KindManagementRightsTransfer:
		return CategoryMgmtTransfers
	default:
		return CategoryOther
	}
}

// Valid reports whether k is one of the declared kinds.
func (k EventKind) Valid() bool {
	return k >= 0 && k < NumKinds
}

// MarshalText encodes the kind as its procedure name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a procedure name.
func (k *EventKind) UnmarshalText(text []byte) error {
	*k = ParseEventKind(string(text))
	return nil
}

// Event is a persisted QX event row. Rows are written by the webhook
// ingestion path and never mutated afterwards.
type Event struct {
	ID                 string          `json:"id"`
	ProcedureTypeValue int             `json:"procedure_type_value"`
	ProcedureTypeName  string          `json:"procedure_type_name"`
	SourceID           string          `json:"source_id"`
	DestID             string          `json:"dest_id"`
	Amount             string          `json:"amount"`
	TickNumber         int64           `json:"tick_number"`
	TxID               string          `json:"tx_id,omitempty"`
	InputType          int             `json:"input_type"`
	InputHex           string          `json:"input_hex,omitempty"`
	SignatureHex       string          `json:"signature_hex,omitempty"`
	TimestampMs        int64           `json:"timestamp"`
	MoneyFlew          bool            `json:"money_flew"`
	IssuerAddress      string          `json:"issuer_address,omitempty"`
	AssetName          string          `json:"asset_name,omitempty"`
	Price              *int64          `json:"price,omitempty"`
	NumberOfShares     *int64          `json:"number_of_shares,omitempty"`
	RawPayload         json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Kind returns the event kind derived from the procedure name.
func (e Event) Kind() EventKind {
	return ParseEventKind(e.ProcedureTypeName)
}

// Token returns the asset name, or the native token when the row has none.
func (e Event) Token() string {
	if strings.TrimSpace(e.AssetName) == "" {
		return NativeToken
	}
	return e.AssetName
}

// EventFilter is the server-side predicate for event queries. The zero
// value matches every row.
type EventFilter struct {
	// Search matches a substring of the source or destination address or
	// of the token symbol (NativeToken when unset), or the exact tick
	// number when it parses as an integer.
	Search string
	// Token matches the asset name case-insensitively. NativeToken also
	// matches rows without an asset name.
	Token string
	// ProcedureName matches procedure_type_name exactly.
	ProcedureName string
	// Since keeps rows whose event timestamp is at or after the instant.
	Since *time.Time
}

// IsZero reports whether the filter applies no predicate.
func (f EventFilter) IsZero() bool {
	return f.Search == "" && f.Token == "" && f.ProcedureName == "" && f.Since == nil
}

// Change is a notification that the events table changed.
type Change struct {
	Table   string    `json:"table"`
	ID      string    `json:"id,omitempty"`
	Applied time.Time `json:"applied"`
}

// Matches evaluates the filter against a row, mirroring the SQL predicate
// the database stores build from it.
func (f EventFilter) Matches(e Event) bool {
	if q := strings.TrimSpace(f.Search); q != "" {
		lq := strings.ToLower(q)
		hit := strings.Contains(strings.ToLower(e.SourceID), lq) ||
			strings.Contains(strings.ToLower(e.DestID), lq) ||
			strings.Contains(strings.ToLower(e.Token()), lq)
		if n, err := strconv.ParseInt(q, 10, 64); err == nil && e.TickNumber == n {
			hit = true
		}
		if !hit {
			return false
		}
	}
	if f.Token != "" {
		if strings.EqualFold(f.Token, NativeToken) {
			if strings.TrimSpace(e.AssetName) != "" && !strings.EqualFold(e.AssetName, NativeToken) {
				return false
			}
		} else if !strings.EqualFold(e.AssetName, f.Token) {
			return false
		}
	}
	if f.ProcedureName != "" && e.ProcedureTypeName != f.ProcedureName {
		return false
	}
	if f.Since != nil && e.TimestampMs < f.Since.UnixMilli() {
		return false
	}
	return true
}
