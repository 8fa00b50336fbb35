package testutil

import (
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/manifest"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
)

// TPCHSeed creates the customer, orders and lineitem tables behind the
// TPC-H manifest. Customer 370 has two orders and three line items, 371 has
// no orders and 372 has one order and no line items.
var TPCHSeed = []string{
	`CREATE TABLE customer (custkey INTEGER, name VARCHAR, address VARCHAR, nationkey INTEGER, phone VARCHAR,
		acctbal INTEGER, mktsegment VARCHAR, comment VARCHAR)`,
	`CREATE TABLE orders (orderkey INTEGER, custkey INTEGER, orderstatus VARCHAR, totalprice INTEGER, orderdate DATE,
		orderpriority VARCHAR, clerk VARCHAR, shippriority INTEGER, comment VARCHAR)`,
	`CREATE TABLE lineitem (orderkey INTEGER, partkey INTEGER, suppkey INTEGER, linenumber INTEGER, quantity INTEGER,
		extendedprice INTEGER, discount INTEGER, tax INTEGER, returnflag VARCHAR, linestatus VARCHAR, shipdate DATE,
		commitdate DATE, receiptdate DATE, shipinstruct VARCHAR, shipmode VARCHAR, comment VARCHAR)`,
	`INSERT INTO customer (custkey, name) VALUES (370, 'Customer#370'), (371, 'Customer#371'), (372, 'Customer#372')`,
	`INSERT INTO orders (orderkey, custkey, orderstatus, totalprice, orderdate) VALUES
		(1, 370, 'O', 100, DATE '2024-01-15'),
		(2, 370, 'F', 50, DATE '2024-03-02'),
		(3, 372, 'O', 30, DATE '2025-06-01')`,
	`INSERT INTO lineitem (orderkey, linenumber, extendedprice, discount, tax) VALUES
		(1, 1, 10, 1, 0),
		(1, 2, 20, 2, 1),
		(2, 1, 5, 3, 0)`,
}

// TPCHManifestPath returns the path of the TPC-H test manifest.
func TPCHManifestPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "manifest", "testdata", "tpch.yaml")
}

// LoadTPCH loads the TPC-H test manifest.
func LoadTPCH(t *testing.T) *manifest.Catalog {
	t.Helper()
	cat, err := manifest.Load(TPCHManifestPath())
	require.NoError(t, err)
	return cat
}

// OpenTPCH opens an in-memory DuckDB seeded with TPCHSeed. The pool is
// limited to one connection so every query sees the same database.
func OpenTPCH(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	for _, stmt := range TPCHSeed {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

// SeedTPCHFile creates a DuckDB database file seeded with TPCHSeed in a
// temporary directory and returns its path. The database is closed so that
// the caller can open it.
func SeedTPCHFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tpch.duckdb")
	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	for _, stmt := range TPCHSeed {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())
	return path
}
