package activity

// Event is one decoded contract event served by the activity feed.
type Event struct {
	Block    uint64                 `json:"block"`
	TxHash   string                 `json:"tx_hash"`
	Contract string                 `json:"contract"`
	Name     string                 `json:"event"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Topics   []string               `json:"topics,omitempty"`
}
