// Package memory provides the reference storage adapter: an in-memory
// tuple store backed by hashicorp/go-memdb. Reads run against MVCC
// snapshots, so open iterations are isolated from concurrent writes and
// Each is restartable by construction. Within a dataset, tuples keep
// their insertion order.
package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
	"github.com/rs/zerolog"

	"github.com/relmap/relmap/internal/logging"
	"github.com/relmap/relmap/pkg/dataset"
	"github.com/relmap/relmap/pkg/tuple"
)

const (
	tableTuples  = "tuples"
	indexID      = "id"
	indexDataset = "dataset"
)

// row is one stored tuple, addressed by dataset name and insertion
// sequence. The dataset index yields rows in seq order because the
// primary key is appended to non-unique index entries.
type row struct {
	dataset string
	seq     uint64
	data    tuple.Tuple
}

var dbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableTuples: {
			Name: tableTuples,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:   indexID,
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "dataset"},
							&memdb.UintFieldIndex{Field: "seq"},
						},
					},
				},
				indexDataset: {
					Name:    indexDataset,
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "dataset"},
				},
			},
		},
	},
}

// Gateway hands out in-memory datasets. Construct with NewGateway; the
// zero value is not usable.
type Gateway struct {
	db  *memdb.MemDB
	seq atomic.Uint64
	log zerolog.Logger
}

var _ dataset.Gateway = (*Gateway)(nil)

type config struct {
	fixtures []fixture
}

type fixture struct {
	dataset string
	tuples  []tuple.Tuple
}

// Option customizes gateway construction.
type Option func(*config)

// WithFixture seeds the named dataset at construction time, preserving
// the given tuple order.
func WithFixture(name string, tuples ...tuple.Tuple) Option {
	return func(c *config) {
		c.fixtures = append(c.fixtures, fixture{dataset: name, tuples: tuples})
	}
}

// NewGateway constructs an empty in-memory gateway.
func NewGateway(opts ...Option) (*Gateway, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, fmt.Errorf("unable to instantiate tuple store: %w", err)
	}

	g := &Gateway{db: db, log: logging.Component("memory")}
	for _, f := range cfg.fixtures {
		if err := g.insert(f.dataset, f.tuples...); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// MustNewGateway is NewGateway that panics on error, for tests and
// static fixtures.
func MustNewGateway(opts ...Option) *Gateway {
	g, err := NewGateway(opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// Dataset returns a handle on the named dataset. Names never written to
// read as empty datasets.
func (g *Gateway) Dataset(name string) dataset.Dataset {
	return &Dataset{gateway: g, name: name}
}

func (g *Gateway) insert(name string, tuples ...tuple.Tuple) error {
	txn := g.db.Txn(true)
	defer txn.Abort()

	for _, t := range tuples {
		r := &row{dataset: name, seq: g.seq.Add(1), data: t.Clone()}
		if err := txn.Insert(tableTuples, r); err != nil {
			return err
		}
	}
	txn.Commit()

	g.log.Trace().Str("dataset", name).Int("tuples", len(tuples)).Msg("inserted tuples")
	return nil
}
