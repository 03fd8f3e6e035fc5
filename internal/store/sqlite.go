package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite keeps entries in a single kv table. Writes are funnelled through one
// writer goroutine that groups queued requests into a transaction.
type SQLite struct {
	db *sql.DB

	ch   chan writeReq
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type writeReq struct {
	ops  []Op
	done chan error
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, eris.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		k BLOB PRIMARY KEY,
		v BLOB NOT NULL
	) WITHOUT ROWID;`); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "create kv table")
	}

	s := &SQLite{db: db, ch: make(chan writeReq, 1024)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return eris.Wrapf(err, "pragma %q", p)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLite) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite get")
	}
	return v, true, nil
}

func (s *SQLite) Put(ctx context.Context, key, value []byte) error {
	return s.Apply(ctx, []Op{{Key: key, Value: value}})
}

func (s *SQLite) Delete(ctx context.Context, key []byte) error {
	return s.Apply(ctx, []Op{{Key: key, Delete: true}})
}

func (s *SQLite) Scan(ctx context.Context, prefix []byte) ([]KV, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixEnd(prefix); end != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k`, prefix, end)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, prefix)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite scan")
	}
	defer rows.Close()
	var out []KV
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite scan row")
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// Apply hands ops to the writer goroutine and waits for the commit.
func (s *SQLite) Apply(ctx context.Context, ops []Op) error {
	if s.closed.Load() {
		return ErrClosed
	}
	r := writeReq{ops: ops, done: make(chan error, 1)}
	select {
	case s.ch <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLite) loop() {
	for r := range s.ch {
		batch := []writeReq{r}
	drain:
		for len(batch) < 256 {
			select {
			case more, ok := <-s.ch:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		err := s.commit(batch)
		for _, b := range batch {
			b.done <- err
		}
	}
}

func (s *SQLite) commit(batch []writeReq) error {
	tx, err := s.db.Begin()
	if err != nil {
		return eris.Wrap(err, "sqlite begin")
	}
	put, err := tx.Prepare(`INSERT INTO kv(k, v) VALUES(?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`)
	if err != nil {
		_ = tx.Rollback()
		return eris.Wrap(err, "sqlite prepare")
	}
	defer put.Close()
	del, err := tx.Prepare(`DELETE FROM kv WHERE k = ?`)
	if err != nil {
		_ = tx.Rollback()
		return eris.Wrap(err, "sqlite prepare")
	}
	defer del.Close()

	for _, r := range batch {
		for _, op := range r.ops {
			if op.Delete {
				_, err = del.Exec(op.Key)
			} else {
				v := op.Value
				if v == nil {
					v = []byte{}
				}
				_, err = put.Exec(op.Key, v)
			}
			if err != nil {
				_ = tx.Rollback()
				return eris.Wrap(err, "sqlite write")
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite commit")
}
