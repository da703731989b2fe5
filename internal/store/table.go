package store

// Schema lifecycle. Migrate and Drop are both idempotent; the version lives
// in PRAGMA user_version so re-running Migrate against a current database is
// a no-op.

func (d *DB) Migrate() error {
	tx, err := d.Pool.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// image_urls holds the full ordered list as a JSON array; the old
	// single image_url column lost everything past the first.
	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS stuff (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  url TEXT NOT NULL UNIQUE,
  price INTEGER NOT NULL DEFAULT 0,
  time TEXT NOT NULL,
  neighborhood TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  longitude REAL,
  latitude REAL,
  image_urls TEXT NOT NULL DEFAULT 'null',
  delivered INTEGER NOT NULL DEFAULT 0,
  attempts INTEGER NOT NULL DEFAULT 0
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_stuff_time ON stuff(time DESC);
`); err != nil {
		return err
	}
	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_stuff_undelivered ON stuff(delivered, time DESC);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) Drop() error {
	if _, err := d.Pool.Exec(`DROP TABLE IF EXISTS stuff;`); err != nil {
		return err
	}
	_, err := d.Pool.Exec(`PRAGMA user_version = 0;`)
	return err
}
