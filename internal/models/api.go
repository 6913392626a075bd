package models

// TransactionRequest is the body of POST /transactions/new. Pointer fields
// distinguish a missing value from a zero value.
type TransactionRequest struct {
	Sender    *string  `json:"sender"`
	Recipient *string  `json:"recipient"`
	Amount    *float64 `json:"amount"`
}

// RegisterNodesRequest is the body of POST /nodes/register.
type RegisterNodesRequest struct {
	Nodes []string `json:"nodes"`
}

// MessageResponse carries a human readable outcome. Error responses use it too.
type MessageResponse struct {
	Message string `json:"message"`
}

// MineResponse describes a freshly sealed block.
type MineResponse struct {
	Message      string        `json:"message"`
	Index        int64         `json:"index"`
	Transactions []Transaction `json:"transactions"`
	Proof        int64         `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

// RegisterNodesResponse lists every known peer after a registration.
type RegisterNodesResponse struct {
	Message    string   `json:"message"`
	TotalNodes []string `json:"total_nodes"`
}

// NodesResponse lists every known peer.
type NodesResponse struct {
	Nodes      []string `json:"nodes"`
	TotalNodes int      `json:"total_nodes"`
}

// ResolveResponse reports the outcome of a consensus round. NewChain is set
// when the local chain was replaced, Chain when it stayed authoritative.
type ResolveResponse struct {
	Message  string  `json:"message"`
	NewChain []Block `json:"new_chain,omitempty"`
	Chain    []Block `json:"chain,omitempty"`
}

// Replaced reports whether the resolve round adopted a peer chain.
func (r ResolveResponse) Replaced() bool {
	return r.NewChain != nil
}
