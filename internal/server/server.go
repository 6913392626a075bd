// Package server exposes a node over HTTP+JSON.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/liftedinit/powchain/internal/consensus"
	"github.com/liftedinit/powchain/internal/ledger"
	"github.com/liftedinit/powchain/internal/metrics/collectors"
	"github.com/liftedinit/powchain/internal/miner"
	"github.com/liftedinit/powchain/internal/models"
	"github.com/liftedinit/powchain/internal/peers"
	"github.com/liftedinit/powchain/internal/pow"
)

const (
	MessageBlockForged   = "New Block Forged"
	MessageMissingValues = "Missing values"
	MessageInvalidNodes  = "Error: Please supply a valid list of nodes"
	MessageNodesAdded    = "New nodes have been added"
	MessageReplaced      = "Our chain was replaced"
	MessageAuthoritative = "Our chain is authoritative"
)

// Recorder observes node activity. The metrics activity collector implements it.
type Recorder interface {
	BlockMined()
	ConsensusRound(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) BlockMined()           {}
func (noopRecorder) ConsensusRound(string) {}

type Server struct {
	ledger   *ledger.Ledger
	peers    *peers.Set
	miner    *miner.Miner
	resolver *consensus.Resolver
	recorder Recorder
}

type Option func(*Server)

func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

func New(l *ledger.Ledger, p *peers.Set, m *miner.Miner, r *consensus.Resolver, opts ...Option) *Server {
	s := &Server{
		ledger:   l,
		peers:    p,
		miner:    m,
		resolver: r,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes the node API. Unsupported methods on known paths get 405.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mine", s.mine)
	mux.HandleFunc("POST /transactions/new", s.newTransaction)
	mux.HandleFunc("GET /chain", s.chain)
	mux.HandleFunc("POST /nodes/register", s.registerNodes)
	mux.HandleFunc("GET /nodes/resolve", s.resolve)
	mux.HandleFunc("GET /nodes", s.nodes)
	return mux
}

func (s *Server) mine(w http.ResponseWriter, r *http.Request) {
	block, err := s.miner.Mine(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pow.ErrSearchExhausted) || r.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		slog.Error("Failed to mine block", "error", err)
		writeMessage(w, status, err.Error())
		return
	}
	s.recorder.BlockMined()

	writeJSON(w, http.StatusOK, models.MineResponse{
		Message:      MessageBlockForged,
		Index:        block.Index,
		Transactions: block.Transactions,
		Proof:        block.Proof,
		PreviousHash: block.PreviousHash,
	})
}

func (s *Server) newTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Debug("Rejected transaction body", "error", err)
		writeMessage(w, http.StatusBadRequest, MessageMissingValues)
		return
	}
	if req.Sender == nil || req.Recipient == nil || req.Amount == nil {
		writeMessage(w, http.StatusBadRequest, MessageMissingValues)
		return
	}

	index := s.ledger.SubmitTransaction(*req.Sender, *req.Recipient, *req.Amount)
	writeMessage(w, http.StatusCreated, fmt.Sprintf("Transaction will be added to Block %d", index))
}

func (s *Server) chain(w http.ResponseWriter, _ *http.Request) {
	chain := s.ledger.Chain()
	writeJSON(w, http.StatusOK, models.ChainResponse{Chain: chain, Length: len(chain)})
}

func (s *Server) registerNodes(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Nodes) == 0 {
		writeMessage(w, http.StatusBadRequest, MessageInvalidNodes)
		return
	}

	// Validate the whole list before registering any of it.
	for _, node := range req.Nodes {
		if _, err := peers.Normalize(node); err != nil {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", MessageInvalidNodes, err))
			return
		}
	}
	for _, node := range req.Nodes {
		if _, err := s.peers.Register(node); err != nil {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", MessageInvalidNodes, err))
			return
		}
	}

	writeJSON(w, http.StatusCreated, models.RegisterNodesResponse{
		Message:    MessageNodesAdded,
		TotalNodes: s.peers.List(),
	})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	result, err := s.resolver.Resolve(r.Context())
	if err != nil {
		s.recorder.ConsensusRound(collectors.OutcomeFailed)
		slog.Error("Consensus round failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Replaced {
		s.recorder.ConsensusRound(collectors.OutcomeReplaced)
		writeJSON(w, http.StatusOK, models.ResolveResponse{Message: MessageReplaced, NewChain: result.Chain})
		return
	}
	s.recorder.ConsensusRound(collectors.OutcomeAuthoritative)
	writeJSON(w, http.StatusOK, models.ResolveResponse{Message: MessageAuthoritative, Chain: result.Chain})
}

func (s *Server) nodes(w http.ResponseWriter, _ *http.Request) {
	list := s.peers.List()
	writeJSON(w, http.StatusOK, models.NodesResponse{Nodes: list, TotalNodes: len(list)})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.MessageResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
