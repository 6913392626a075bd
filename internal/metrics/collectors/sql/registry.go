package sql

import (
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// SqlCollectorFactory creates a collector reading from db.
type SqlCollectorFactory func(db *sql.DB) (prometheus.Collector, error)

type SqlRegistry struct {
	factories []SqlCollectorFactory
}

func NewSqlRegistry() *SqlRegistry {
	return &SqlRegistry{
		factories: make([]SqlCollectorFactory, 0),
	}
}

func (r *SqlRegistry) Register(factory SqlCollectorFactory) {
	r.factories = append(r.factories, factory)
}

// CreateSqlCollectors instantiates every registered collector against db.
func (r *SqlRegistry) CreateSqlCollectors(db *sql.DB) ([]prometheus.Collector, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}

	collectors := make([]prometheus.Collector, 0, len(r.factories))
	for _, factory := range r.factories {
		collector, err := factory(db)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, collector)
	}
	return collectors, nil
}

var DefaultSqlRegistry = NewSqlRegistry()

func RegisterCollectorFactory(factory SqlCollectorFactory) {
	DefaultSqlRegistry.Register(factory)
}
