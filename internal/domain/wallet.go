package domain

import "time"

// MaxWalletLabels caps the number of free-form labels per address.
const MaxWalletLabels = 5

// Wallet tracks activity of a source address seen by the webhook.
type Wallet struct {
	Address          string    `json:"address"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	TransactionCount int64     `json:"transaction_count"`
	LatestTickNumber int64     `json:"latest_tick_number"`
}

// WalletLabels maps an address to its labels.
type WalletLabels map[string][]string
