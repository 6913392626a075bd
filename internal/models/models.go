package models

// Transaction is a transfer recorded in the ledger.
type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
}

// Block is a sealed, ordered batch of transactions.
// Timestamp is expressed in seconds since the Unix epoch.
type Block struct {
	Index        int64         `json:"index"`
	Timestamp    float64       `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	Proof        int64         `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

// ChainResponse is the full-chain payload a node serves to clients and peers.
type ChainResponse struct {
	Chain  []Block `json:"chain"`
	Length int     `json:"length"`
}
