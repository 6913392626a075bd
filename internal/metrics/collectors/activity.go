package collectors

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeReplaced      = "replaced"
	OutcomeAuthoritative = "authoritative"
	OutcomeFailed        = "failed"
)

// ActivityCollector counts blocks forged by this node and consensus rounds by
// outcome.
type ActivityCollector struct {
	blocksMined     prometheus.Counter
	consensusRounds *prometheus.CounterVec
}

func NewActivityCollector() *ActivityCollector {
	rounds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consensus",
		Name:      "rounds_total",
		Help:      "Consensus rounds by outcome",
	}, []string{"outcome"})
	for _, outcome := range []string{OutcomeReplaced, OutcomeAuthoritative, OutcomeFailed} {
		rounds.WithLabelValues(outcome)
	}

	return &ActivityCollector{
		blocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocks",
			Name:      "mined_total",
			Help:      "Blocks forged by this node",
		}),
		consensusRounds: rounds,
	}
}

func (c *ActivityCollector) BlockMined() {
	c.blocksMined.Inc()
}

func (c *ActivityCollector) ConsensusRound(outcome string) {
	c.consensusRounds.WithLabelValues(outcome).Inc()
}

func (c *ActivityCollector) Describe(ch chan<- *prometheus.Desc) {
	c.blocksMined.Describe(ch)
	c.consensusRounds.Describe(ch)
}

func (c *ActivityCollector) Collect(ch chan<- prometheus.Metric) {
	c.blocksMined.Collect(ch)
	c.consensusRounds.Collect(ch)
}
