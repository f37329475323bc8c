package models

// Decision is the consensus verdict for one signal.
type Decision struct {
	ShouldTrade  bool         `json:"should_trade"`
	Action       SignalAction `json:"action"`
	Reason       string       `json:"reason"`
	Mode         SignalMode   `json:"mode"`
	ActiveCount  int          `json:"active_count"`
	Count        int          `json:"count"`
	ActiveWeight float64      `json:"active_weight"`
	TotalWeight  float64      `json:"total_weight"`
	// Misconfigured marks a fail-closed rejection caused by bot configuration.
	Misconfigured bool `json:"misconfigured,omitempty"`
}
