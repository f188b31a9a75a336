package domain

// Threshold is the whale amount for one token. Tokens compare
// case-insensitively.
type Threshold struct {
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

// Confirmation is the user-visible acknowledgement of a settings change.
type Confirmation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
