package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftedinit/powchain/internal/models"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNodeClientChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/chain", r.URL.Path)
		writeJSON(t, w, http.StatusOK, models.ChainResponse{
			Chain:  []models.Block{{Index: 1, Proof: 100, PreviousHash: "1", Transactions: []models.Transaction{}}},
			Length: 1,
		})
	}))
	defer srv.Close()

	got, err := NewNodeClient(srv.URL+"/", time.Second).Chain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Length)
	require.Len(t, got.Chain, 1)
	assert.Equal(t, int64(100), got.Chain[0].Proof)
}

func TestNodeClientSubmitTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions/new", r.URL.Path)

		var tx models.Transaction
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tx))
		assert.Equal(t, models.Transaction{Sender: "a", Recipient: "b", Amount: 5}, tx)
		writeJSON(t, w, http.StatusCreated, models.MessageResponse{Message: "Transaction will be added to Block 2"})
	}))
	defer srv.Close()

	got, err := NewNodeClient(srv.URL, time.Second).SubmitTransaction(context.Background(), models.Transaction{Sender: "a", Recipient: "b", Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, "Transaction will be added to Block 2", got.Message)
}

func TestNodeClientRegisterNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterNodesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"http://10.0.0.1:5000"}, req.Nodes)
		writeJSON(t, w, http.StatusCreated, models.RegisterNodesResponse{
			Message:    "New nodes have been added",
			TotalNodes: []string{"10.0.0.1:5000"},
		})
	}))
	defer srv.Close()

	got, err := NewNodeClient(srv.URL, time.Second).RegisterNodes(context.Background(), []string{"http://10.0.0.1:5000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:5000"}, got.TotalNodes)
}

func TestNodeClientResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nodes/resolve", r.URL.Path)
		writeJSON(t, w, http.StatusOK, models.ResolveResponse{
			Message: "Our chain is authoritative",
			Chain:   []models.Block{{Index: 1}},
		})
	}))
	defer srv.Close()

	got, err := NewNodeClient(srv.URL, time.Second).Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Replaced())
	assert.Len(t, got.Chain, 1)
}

func TestNodeClientErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, models.MessageResponse{Message: "Missing values"})
	}))
	defer srv.Close()

	_, err := NewNodeClient(srv.URL, time.Second).SubmitTransaction(context.Background(), models.Transaction{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "returned 400: Missing values")
}

func TestNodeClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := NewNodeClient(srv.URL, time.Second).Nodes(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "returned 418: teapot")
}

func TestPeerClientFetchChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chain", r.URL.Path)
		writeJSON(t, w, http.StatusOK, models.ChainResponse{Chain: []models.Block{{Index: 1}, {Index: 2}}, Length: 2})
	}))
	defer srv.Close()

	address := strings.TrimPrefix(srv.URL, "http://")
	got, err := NewPeerClient(time.Second).FetchChain(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Length)
}

func TestPeerClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	address := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := NewPeerClient(time.Second).FetchChain(context.Background(), address)
	require.Error(t, err)
	assert.ErrorContains(t, err, "GET http://"+address+"/chain failed")
}

func TestPeerClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewPeerClient(50*time.Millisecond).FetchChain(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.Error(t, err)
}
