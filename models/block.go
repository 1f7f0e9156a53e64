package models

// Block is one observed block record from a node log.
//
// The fields up to BlockSize come straight from the parsed log line. The
// remaining fields are derived: they are populated once by graph finalization
// and are meaningless before it. Relational derived data (children, epoch
// membership) is stored here as hashes; the graph keeps the dense-index form
// used by the algorithms.
type Block struct {
	Height        uint64  `json:"height"`
	Hash          Hash    `json:"hash"`
	ParentHash    Hash    `json:"parent_hash"`
	RefereeHashes []Hash  `json:"referee_hashes"`
	Timestamp     uint64  `json:"timestamp"`
	LogTimestamp  float64 `json:"log_timestamp"`
	TxCount       uint64  `json:"tx_count"`
	BlockSize     uint64  `json:"block_size"`

	// Derived by finalization.
	Children    []Hash `json:"children,omitempty"` // ordered by descending subtree size
	SubtreeSize int    `json:"subtree_size"`
	EpochBlock  Hash   `json:"epoch_block"` // pivot block owning this block's epoch
	PastSetSize int    `json:"past_set_size"`
	EpochSize   int    `json:"epoch_size,omitempty"` // pivot blocks only
}
