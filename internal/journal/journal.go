package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/relay/internal/taskstore"
	"github.com/ShayCichocki/relay/pkg/models"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	Seq       int64
	RunID     string
	Event     taskstore.EventType
	TaskID    string
	ParentID  string
	Kind      models.TaskKind
	Status    models.TaskStatus
	Name      string
	Error     string
	Task      models.Task
	Timestamp time.Time
}

// Run is one recorded process invocation.
type Run struct {
	ID        string
	Command   string
	StartedAt time.Time
	Events    int
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	RunID  string
	TaskID string
	// Limit caps the number of entries; the most recent are kept.
	Limit int
}

// StartRun records this journal's run under command.
func (j *Journal) StartRun(ctx context.Context, command string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO runs (id, command, started_at) VALUES (?, ?, ?)",
		j.runID, command, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Append records one event under this journal's run.
func (j *Journal) Append(ctx context.Context, e taskstore.Event) error {
	data, err := json.Marshal(e.Task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", e.Task.ID, err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.conn.ExecContext(ctx, `
		INSERT INTO events (run_id, event, task_id, parent_id, kind, status, name, error, task_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.runID, string(e.Type), e.Task.ID, nullable(e.Task.ParentID), string(e.Task.Kind),
		string(e.Task.Status), e.Task.Name, nullable(e.Task.Error), string(data), formatTime(ts))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Attach subscribes the journal to store. Write failures are logged and
// never reach the store. The returned function detaches.
func (j *Journal) Attach(store *taskstore.Store) func() {
	return store.Subscribe(func(e taskstore.Event) {
		if err := j.Append(context.Background(), e); err != nil {
			j.logger.WithError(err).WithField("task_id", e.Task.ID).Warn("journal write failed")
		}
	})
}

// List returns recorded entries in recording order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.TaskID != "" {
		where = append(where, "(task_id = ? OR parent_id = ?)")
		args = append(args, f.TaskID, f.TaskID)
	}

	query := "SELECT seq, run_id, event, task_id, parent_id, kind, status, name, error, task_json, ts FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                      Entry
			event, kind, status    string
			parentID, errMsg, name sql.NullString
			taskJSON, ts           string
		)
		if err := rows.Scan(&e.Seq, &e.RunID, &event, &e.TaskID, &parentID, &kind, &status, &name, &errMsg, &taskJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Event = taskstore.EventType(event)
		e.Kind = models.TaskKind(kind)
		e.Status = models.TaskStatus(status)
		e.ParentID = parentID.String
		e.Name = name.String
		e.Error = errMsg.String
		if err := json.Unmarshal([]byte(taskJSON), &e.Task); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", e.TaskID, err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows were fetched newest first so Limit keeps the most recent.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, nil
}

// Runs returns the most recent runs, newest first, with their event counts.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.QueryContext(ctx, `
		SELECT r.id, r.command, r.started_at, COUNT(e.seq)
		FROM runs r LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ts string
		if err := rows.Scan(&r.ID, &r.Command, &ts, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
