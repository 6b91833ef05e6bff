package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "pewcron/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlStore implements Store over database/sql. Times are stored as unix
// milliseconds so the same queries work on sqlite and mysql.
type sqlStore struct {
	db   *sql.DB
	log  logx.Logger
	now  func() time.Time
	keep int
}

func newSQLStore(db *sql.DB, cfg Config, log logx.Logger) *sqlStore {
	return &sqlStore{db: db, log: log, now: cfg.now(), keep: cfg.MaxLaunchesPerTask}
}

// migrate runs the dialect's migration file statement by statement; neither
// driver is configured for multi-statement execs.
func (s *sqlStore) migrate(ctx context.Context, dialect string) error {
	b, err := migrationsFS.ReadFile("migrations/" + dialect + ".sql")
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) LastLaunch(ctx context.Context, taskID int, taskType, name, description string) (*Launch, error) {
	now := s.now().UnixMilli()
	var cur TaskRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT type, name, description FROM scheduler_tasks WHERE id = ?`, taskID,
	).Scan(&cur.Type, &cur.Name, &cur.Description)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO scheduler_tasks(id, type, name, description, last_activity) VALUES(?,?,?,?,?)`,
			taskID, taskType, name, description, now,
		)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	next := TaskRecord{Type: taskType, Name: name, Description: description}
	if !cur.sameIdentity(next) {
		_, err = s.db.ExecContext(ctx,
			`UPDATE scheduler_tasks SET type = ?, name = ?, description = ?, last_activity = ? WHERE id = ?`,
			taskType, name, description, now, taskID,
		)
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_tasks SET last_activity = ? WHERE id = ?`, now, taskID,
	); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, start_time, end_time, is_working, error_count, error_text
		 FROM scheduler_launches WHERE task_id = ?
		 ORDER BY start_time DESC, id DESC LIMIT 1`, taskID)
	l, err := scanLaunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *sqlStore) StartNewLaunch(ctx context.Context, taskID int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduler_launches(task_id, start_time) VALUES(?,?)`,
		taskID, s.now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if s.keep > 0 {
		if err := s.prune(ctx, taskID); err != nil {
			s.log.Warn("launch retention failed", logx.Int("task_id", taskID), logx.Err(err))
		}
	}
	return id, nil
}

// prune deletes everything older than the newest keep launches of a task.
func (s *sqlStore) prune(ctx context.Context, taskID int) error {
	var (
		cutID    int64
		cutStart int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_time FROM scheduler_launches WHERE task_id = ?
		 ORDER BY start_time DESC, id DESC LIMIT 1 OFFSET ?`, taskID, s.keep,
	).Scan(&cutID, &cutStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM scheduler_launches
		 WHERE task_id = ? AND (start_time < ? OR (start_time = ? AND id <= ?))`,
		taskID, cutStart, cutStart, cutID,
	)
	return err
}

func (s *sqlStore) RestartExistingLaunch(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_launches SET start_time = ?, end_time = NULL, is_working = 1 WHERE id = ?`,
		s.now().UnixMilli(), id,
	)
	if err := affected(res, err, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqlStore) CompleteLaunchSuccessfully(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_launches SET end_time = ?, is_working = 0, error_count = 0, error_text = NULL WHERE id = ?`,
		s.now().UnixMilli(), id,
	)
	return affected(res, err, id)
}

func (s *sqlStore) CompleteLaunchUnsuccessfully(ctx context.Context, id int64, text string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_launches SET end_time = ?, is_working = 0, error_count = error_count + 1, error_text = ? WHERE id = ?`,
		s.now().UnixMilli(), text, id,
	)
	if err := affected(res, err, id); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT error_count FROM scheduler_launches WHERE id = ?`, id,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("read error count of launch %d: %w", id, err)
	}
	return n, nil
}

func (s *sqlStore) ResetLock(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_launches SET end_time = ?, is_working = 0, error_count = error_count + 1, error_text = ? WHERE id = ?`,
		s.now().UnixMilli(), ResetLockText, id,
	)
	return affected(res, err, id)
}

func (s *sqlStore) Tasks(ctx context.Context) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, description, last_activity FROM scheduler_tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			t  TaskRecord
			ms int64
		)
		if err := rows.Scan(&t.ID, &t.Type, &t.Name, &t.Description, &ms); err != nil {
			return nil, err
		}
		t.LastActivity = time.UnixMilli(ms)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) Launches(ctx context.Context, taskID int, limit int) ([]Launch, error) {
	q := `SELECT id, task_id, start_time, end_time, is_working, error_count, error_text
		FROM scheduler_launches WHERE task_id = ?
		ORDER BY start_time DESC, id DESC`
	args := []any{taskID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLaunch(r rowScanner) (Launch, error) {
	var (
		l       Launch
		start   int64
		end     sql.NullInt64
		working int64
		text    sql.NullString
	)
	if err := r.Scan(&l.ID, &l.TaskID, &start, &end, &working, &l.ErrorCount, &text); err != nil {
		return Launch{}, err
	}
	l.StartTime = time.UnixMilli(start)
	if end.Valid {
		l.EndTime = timePtr(time.UnixMilli(end.Int64))
	}
	l.IsWorking = working != 0
	l.ErrorText = text.String
	return l, nil
}

func affected(res sql.Result, err error, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrLaunchNotFound, id)
	}
	return nil
}
