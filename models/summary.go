package models

// ConfirmStat is the confirmation-time aggregate for one adversary fraction.
type ConfirmStat struct {
	Adversary      float64 `json:"adversary"`
	RiskThreshold  float64 `json:"risk_threshold"`
	AvgConfirmTime float64 `json:"avg_confirm_time"`
	Confirmed      int     `json:"confirmed"` // pivot blocks that reached the threshold
}

// Summary is the per-log result of a batch analysis run.
type Summary struct {
	ID           string        `json:"id"`
	LogPath      string        `json:"log_path"`
	BlockCount   int           `json:"block_count"`
	PivotLength  int           `json:"pivot_length"`
	AvgEpochTime float64       `json:"avg_epoch_time"`
	ConfirmStats []ConfirmStat `json:"confirm_stats"`
	GeneratedAt  int64         `json:"generated_at"` // unix timestamp in ms
}
