package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "framesched/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const defaultRetain = 10000

type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	retain int
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the flusher is the only client.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	retain := cfg.Retain
	if retain <= 0 {
		retain = defaultRetain
	}
	st := &sqliteStore{db: db, log: log, retain: retain}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path), logx.Int("retain", retain))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendFaults(ctx context.Context, recs []FaultRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO faults(at, phase, participant, err, panic) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		if r.At.IsZero() {
			r.At = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.At.UnixMilli(), r.Phase, r.Participant, nullStr(r.Error), nullStr(r.Panic)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM faults WHERE id <= (SELECT MAX(id) FROM faults) - ?`, s.retain); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendFrameStats(ctx context.Context, st FrameStats) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if st.At.IsZero() {
		st.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO frame_stats(at, frame, fps, time_scale, update_n, fixed_n, late_n, background_n, faults, dropped_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		st.At.UnixMilli(), int64(st.Frame), st.FPS, st.TimeScale,
		st.Update, st.FixedUpdate, st.LateUpdate, st.Background, int64(st.Faults), st.DroppedMS,
	)
	return err
}

func (s *sqliteStore) RecentFaults(ctx context.Context, limit int) ([]FaultRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, phase, participant, err, panic FROM faults ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FaultRecord
	for rows.Next() {
		var (
			at       int64
			r        FaultRecord
			msg, pan sql.NullString
		)
		if err := rows.Scan(&at, &r.Phase, &r.Participant, &msg, &pan); err != nil {
			return nil, err
		}
		r.At = time.UnixMilli(at)
		r.Error = msg.String
		r.Panic = pan.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest last.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
