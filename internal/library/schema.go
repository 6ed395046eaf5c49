package library

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL DEFAULT '',
	cover_url        TEXT NOT NULL DEFAULT '',
	last_opened      INTEGER NOT NULL,
	progress         REAL NOT NULL DEFAULT 0,
	current_position TEXT NOT NULL DEFAULT '',
	file_type        TEXT NOT NULL,
	file_path        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_books_last_opened ON books(last_opened DESC);

CREATE TABLE IF NOT EXISTS positions (
	book_id    TEXT PRIMARY KEY,
	position   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
	book_id    TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value REAL NOT NULL
);
`
