package journal

// Schema is the SQLite layout. Timestamps are stored as DATETIME and floats
// as REAL.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	type TEXT NOT NULL,
	role TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	maker INTEGER NOT NULL,
	realized REAL NOT NULL,
	time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_price REAL NOT NULL,
	close_price REAL NOT NULL,
	leverage INTEGER NOT NULL,
	realized_profit REAL NOT NULL,
	fees REAL NOT NULL,
	adjustments INTEGER NOT NULL,
	liquidated INTEGER NOT NULL,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
	time DATETIME NOT NULL,
	asset TEXT NOT NULL,
	total REAL NOT NULL,
	available REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	liquidations INTEGER NOT NULL,
	fees REAL NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	max_dd_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);
CREATE INDEX IF NOT EXISTS idx_positions_closed ON positions(closed_at);
CREATE INDEX IF NOT EXISTS idx_balances_time ON balances(time);
`

// PostgresSchema is the same layout for Postgres. Money and prices are
// NUMERIC and scanned into decimal.Decimal.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS fills (
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	type TEXT NOT NULL,
	role TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	price NUMERIC NOT NULL,
	fee NUMERIC NOT NULL,
	maker BOOLEAN NOT NULL,
	realized NUMERIC NOT NULL,
	time TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id BIGSERIAL PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	entry_price NUMERIC NOT NULL,
	close_price NUMERIC NOT NULL,
	leverage INTEGER NOT NULL,
	realized_profit NUMERIC NOT NULL,
	fees NUMERIC NOT NULL,
	adjustments INTEGER NOT NULL,
	liquidated BOOLEAN NOT NULL,
	opened_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
	time TIMESTAMPTZ NOT NULL,
	asset TEXT NOT NULL,
	total NUMERIC NOT NULL,
	available NUMERIC NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);
CREATE INDEX IF NOT EXISTS idx_balances_time ON balances(time);
`
