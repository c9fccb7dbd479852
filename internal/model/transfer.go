package model

// Erc20Transfer is a decoded Transfer event, sharing its identity with
// the source log so at most one transfer exists per log. Value is a
// base-10 string because the amount is an unsigned 256-bit integer.
type Erc20Transfer struct {
	TxHash   string `json:"tx_hash"`
	LogIndex int64  `json:"log_index"`
	Token    string `json:"token"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Parsed   bool   `json:"parsed"`
}
