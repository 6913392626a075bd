package sql

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

const ExportedHeightQuery = `SELECT COALESCE(MAX(id), 0) FROM api.blocks`

// ExportHeightCollector reports the highest block index held by the export.
type ExportHeightCollector struct {
	db     *sql.DB
	height *prometheus.Desc
}

func NewExportHeightCollector(db *sql.DB) *ExportHeightCollector {
	return &ExportHeightCollector{
		db: db,
		height: prometheus.NewDesc(
			prometheus.BuildFQName("powchain", "export", "height"),
			"Highest exported block index",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
	}
}

func (c *ExportHeightCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.height
}

func (c *ExportHeightCollector) Collect(ch chan<- prometheus.Metric) {
	var height int64
	if err := c.db.QueryRow(ExportedHeightQuery).Scan(&height); err != nil {
		ch <- prometheus.NewInvalidMetric(c.height, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.height, prometheus.GaugeValue, float64(height))
}

func init() {
	RegisterCollectorFactory(func(db *sql.DB) (prometheus.Collector, error) {
		return NewExportHeightCollector(db), nil
	})
}
