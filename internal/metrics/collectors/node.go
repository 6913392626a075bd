// Package collectors exposes node state as Prometheus metrics.
package collectors

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "powchain"

// ChainState is the part of the ledger the node collector reads.
type ChainState interface {
	Len() int
	PendingLen() int
}

type PeerCounter interface {
	Len() int
}

// NodeCollector reports the chain length, pending pool size and peer count
// at scrape time.
type NodeCollector struct {
	chain   ChainState
	peers   PeerCounter
	length  *prometheus.Desc
	pending *prometheus.Desc
	total   *prometheus.Desc
}

func NewNodeCollector(chain ChainState, peers PeerCounter) *NodeCollector {
	return &NodeCollector{
		chain: chain,
		peers: peers,
		length: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "length"),
			"Number of blocks in the local chain",
			nil, nil,
		),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_transactions"),
			"Transactions waiting for the next block",
			nil, nil,
		),
		total: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "peers", "total"),
			"Registered peers",
			nil, nil,
		),
	}
}

func (c *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.length
	ch <- c.pending
	ch <- c.total
}

func (c *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.length, prometheus.GaugeValue, float64(c.chain.Len()))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(c.chain.PendingLen()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(c.peers.Len()))
}
