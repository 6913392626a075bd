package sql

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ExportedBlocksQuery       = `SELECT COUNT(*) FROM api.blocks`
	ExportedTransactionsQuery = `SELECT COUNT(*) FROM api.transactions`
)

// ExportCountCollector reports how many blocks and transactions the PostgreSQL
// export holds.
type ExportCountCollector struct {
	db           *sql.DB
	blocks       *prometheus.Desc
	transactions *prometheus.Desc
}

func NewExportCountCollector(db *sql.DB) *ExportCountCollector {
	return &ExportCountCollector{
		db: db,
		blocks: prometheus.NewDesc(
			prometheus.BuildFQName("powchain", "export", "blocks_total"),
			"Blocks exported to PostgreSQL",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
		transactions: prometheus.NewDesc(
			prometheus.BuildFQName("powchain", "export", "transactions_total"),
			"Transactions exported to PostgreSQL",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
	}
}

func (c *ExportCountCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blocks
	ch <- c.transactions
}

func (c *ExportCountCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectCount(ch, c.blocks, ExportedBlocksQuery)
	c.collectCount(ch, c.transactions, ExportedTransactionsQuery)
}

func (c *ExportCountCollector) collectCount(ch chan<- prometheus.Metric, desc *prometheus.Desc, query string) {
	var count int64
	if err := c.db.QueryRow(query).Scan(&count); err != nil {
		ch <- prometheus.NewInvalidMetric(desc, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(count))
}

func init() {
	RegisterCollectorFactory(func(db *sql.DB) (prometheus.Collector, error) {
		return NewExportCountCollector(db), nil
	})
}
