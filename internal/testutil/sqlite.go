package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// ShopSchema is a small order-entry schema with a composite key, a
// self-reference and a multi-level foreign key chain.
const ShopSchema = `
CREATE TABLE customer (
	id INTEGER PRIMARY KEY,
	name VARCHAR(100) NOT NULL,
	referred_by INTEGER REFERENCES customer(id)
);
CREATE TABLE orders (
	id INTEGER NOT NULL,
	customer_id INTEGER NOT NULL,
	total DECIMAL(10,2) DEFAULT 0,
	PRIMARY KEY (id),
	FOREIGN KEY (customer_id) REFERENCES customer(id) ON DELETE CASCADE
);
CREATE TABLE order_line (
	order_id INTEGER NOT NULL REFERENCES orders(id),
	line_no INTEGER NOT NULL,
	sku VARCHAR(20),
	PRIMARY KEY (order_id, line_no)
);
CREATE INDEX ix_orders_customer ON orders (customer_id);
CREATE UNIQUE INDEX ux_customer_name ON customer (name DESC);
CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100;
`

// OpenSQLite opens a private in-memory database and runs the given DDL.
// The handle is closed when the test ends.
func OpenSQLite(t testing.TB, ddl string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if ddl != "" {
		_, err = db.Exec(ddl)
		require.NoError(t, err)
	}
	return db
}
