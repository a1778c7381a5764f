package feeds

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"sync"

	"github.com/drpcorg/feedview/feedview_errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	log   TEXT    NOT NULL,
	seq   INTEGER NOT NULL,
	value BLOB,
	PRIMARY KEY (log, seq)
);`

// rows fetched per query by ReadFrom; the statement is closed before yielding
const sqlitePage = 256

// SQLiteLogs stores logs in a single sqlite table.
type SQLiteLogs struct {
	db   *sql.DB
	lock sync.Mutex
}

type sqliteLog struct {
	id LogID
	sl *SQLiteLogs
}

// OpenSQLiteLogs opens path, ":memory:" included.
func OpenSQLiteLogs(path string) (*SQLiteLogs, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteLogs{db: db}, nil
}

func (s *SQLiteLogs) Append(ctx context.Context, id LogID, value []byte) (*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	var seq uint64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq) + 1, 0) FROM records WHERE log = ?", string(id)).Scan(&seq)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO records (log, seq, value) VALUES (?, ?, ?)", string(id), int64(seq), value)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Record{Log: id, Seq: seq, Value: value}, nil
}

func (s *SQLiteLogs) All() []Log {
	rows, err := s.db.Query("SELECT DISTINCT log FROM records ORDER BY log")
	if err != nil {
		return nil
	}
	defer rows.Close()
	var all []Log
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil
		}
		all = append(all, sqliteLog{id: LogID(id), sl: s})
	}
	// sqlite orders TEXT by memcmp, same as Go strings
	return all
}

func (s *SQLiteLogs) Log(id LogID) (Log, bool) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records WHERE log = ? LIMIT 1", string(id)).Scan(&n)
	return sqliteLog{id: id, sl: s}, err == nil && n > 0
}

func (s *SQLiteLogs) Close() error {
	return s.db.Close()
}

func (l sqliteLog) ID() LogID {
	return l.id
}

func (l sqliteLog) Len() uint64 {
	var n uint64
	err := l.sl.db.QueryRow(
		"SELECT COALESCE(MAX(seq) + 1, 0) FROM records WHERE log = ?", string(l.id)).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

func (l sqliteLog) Get(ctx context.Context, seq uint64) (*Record, error) {
	var value []byte
	err := l.sl.db.QueryRowContext(ctx,
		"SELECT value FROM records WHERE log = ? AND seq = ?", string(l.id), int64(seq)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, feedview_errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Record{Log: l.id, Seq: seq, Value: value}, nil
}

func (l sqliteLog) page(ctx context.Context, from uint64) ([]*Record, error) {
	rows, err := l.sl.db.QueryContext(ctx,
		"SELECT seq, value FROM records WHERE log = ? AND seq >= ? ORDER BY seq LIMIT ?",
		string(l.id), int64(from), sqlitePage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Record, 0, sqlitePage)
	for rows.Next() {
		rec := &Record{Log: l.id}
		var seq int64
		if err := rows.Scan(&seq, &rec.Value); err != nil {
			return nil, err
		}
		rec.Seq = uint64(seq)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l sqliteLog) ReadFrom(ctx context.Context, seq uint64) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for {
			recs, err := l.page(ctx, seq)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range recs {
				if !yield(rec, nil) {
					return
				}
			}
			if len(recs) < sqlitePage {
				return
			}
			seq = recs[len(recs)-1].Seq + 1
		}
	}
}
