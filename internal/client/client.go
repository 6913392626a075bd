// Package client talks to powchain nodes over their HTTP API.
package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/liftedinit/powchain/internal/models"
)

// NodeClient calls the API of a single node.
type NodeClient struct {
	rest *resty.Client
}

// NewNodeClient creates a client for the node served at baseURL.
func NewNodeClient(baseURL string, timeout time.Duration) *NodeClient {
	return &NodeClient{rest: newRestClient(timeout).SetBaseURL(strings.TrimSuffix(baseURL, "/"))}
}

func (c *NodeClient) Chain(ctx context.Context) (models.ChainResponse, error) {
	return call[models.ChainResponse](c.rest.R().SetContext(ctx), http.MethodGet, "/chain")
}

func (c *NodeClient) Mine(ctx context.Context) (models.MineResponse, error) {
	return call[models.MineResponse](c.rest.R().SetContext(ctx), http.MethodGet, "/mine")
}

func (c *NodeClient) SubmitTransaction(ctx context.Context, tx models.Transaction) (models.MessageResponse, error) {
	req := c.rest.R().SetContext(ctx).SetBody(tx)
	return call[models.MessageResponse](req, http.MethodPost, "/transactions/new")
}

func (c *NodeClient) RegisterNodes(ctx context.Context, nodes []string) (models.RegisterNodesResponse, error) {
	req := c.rest.R().SetContext(ctx).SetBody(models.RegisterNodesRequest{Nodes: nodes})
	return call[models.RegisterNodesResponse](req, http.MethodPost, "/nodes/register")
}

func (c *NodeClient) Nodes(ctx context.Context) (models.NodesResponse, error) {
	return call[models.NodesResponse](c.rest.R().SetContext(ctx), http.MethodGet, "/nodes")
}

func (c *NodeClient) Resolve(ctx context.Context) (models.ResolveResponse, error) {
	return call[models.ResolveResponse](c.rest.R().SetContext(ctx), http.MethodGet, "/nodes/resolve")
}

// PeerClient fetches chains from peers addressed as host:port.
type PeerClient struct {
	rest *resty.Client
}

func NewPeerClient(timeout time.Duration) *PeerClient {
	return &PeerClient{rest: newRestClient(timeout)}
}

// FetchChain retrieves the full chain served by the peer at address.
func (c *PeerClient) FetchChain(ctx context.Context, address string) (models.ChainResponse, error) {
	return call[models.ChainResponse](c.rest.R().SetContext(ctx), http.MethodGet, "http://"+address+"/chain")
}

func newRestClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

func call[T any](req *resty.Request, method, url string) (T, error) {
	var result T
	var apiErr models.MessageResponse

	resp, err := req.SetResult(&result).SetError(&apiErr).Execute(method, url)
	if err != nil {
		var zero T
		return zero, errors.WithMessagef(err, "%s %s failed", method, url)
	}
	if resp.IsError() {
		message := apiErr.Message
		if message == "" {
			message = strings.TrimSpace(resp.String())
		}
		var zero T
		return zero, errors.Errorf("%s %s returned %d: %s", method, url, resp.StatusCode(), message)
	}

	return result, nil
}
