// Package cache keeps an offline mirror of the user's activities in a local
// SQLite database so the calendar stays usable without the network. The
// mirror is replaced wholesale on every sync; the server stays the owner of
// the data.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"studycal/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	start_time     TEXT NOT NULL,
	end_clock      TEXT NOT NULL,
	recurrence     TEXT NOT NULL,
	repeat_count   INTEGER NOT NULL DEFAULT 0,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	gradient_start TEXT NOT NULL DEFAULT '',
	gradient_end   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	activity_id TEXT NOT NULL,
	priority    TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	task_index  INTEGER NOT NULL DEFAULT 0,
	color       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_activity ON tasks(activity_id);

CREATE TABLE IF NOT EXISTS sync_state (
	user_id   TEXT PRIMARY KEY,
	synced_at TEXT NOT NULL
);
`

// Cache is the SQLite-backed offline activity mirror.
type Cache struct {
	db *sql.DB
}

// Open opens (and if needed bootstraps) the cache database at dsn.
func Open(dsn string) (*Cache, error) {
	if dsn == "" {
		return nil, errors.New("cache: empty DSN")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	// A single writer keeps the replace-all sync trivially consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: bootstrap schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// ReplaceActivities swaps the mirrored activity set for userID with the
// given entries and records the sync instant, all in one transaction.
func (c *Cache) ReplaceActivities(ctx context.Context, userID string, entries []model.ActivityWithTasks) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE activity_id IN (SELECT id FROM activities WHERE user_id = ?)`, userID); err != nil {
		return fmt.Errorf("cache: clear tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("cache: clear activities: %w", err)
	}

	for _, entry := range entries {
		act := entry.Activity
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activities
				(id, user_id, start_time, end_clock, recurrence, repeat_count,
				 name, description, category, gradient_start, gradient_end)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			act.ID, userID, act.Start.Format(time.RFC3339Nano), act.EndClock,
			string(act.Recurrence), act.RepeatCount,
			act.Name, act.Description, act.Category,
			act.GradientStart, act.GradientEnd,
		); err != nil {
			return fmt.Errorf("cache: insert activity %s: %w", act.ID, err)
		}

		for _, task := range entry.Tasks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tasks
					(id, activity_id, priority, name, description, task_index, color, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				task.ID, act.ID, task.Priority, task.Name, task.Description,
				task.Index, task.Color, task.Status,
			); err != nil {
				return fmt.Errorf("cache: insert task %s: %w", task.ID, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, synced_at) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET synced_at = excluded.synced_at`,
		userID, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("cache: record sync: %w", err)
	}

	return tx.Commit()
}

// Activities returns the mirrored activities with tasks for userID.
func (c *Cache) Activities(ctx context.Context, userID string) ([]model.ActivityWithTasks, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, start_time, end_clock, recurrence, repeat_count,
		       name, description, category, gradient_start, gradient_end
		FROM activities WHERE user_id = ? ORDER BY start_time`, userID)
	if err != nil {
		return nil, fmt.Errorf("cache: query activities: %w", err)
	}
	defer rows.Close()

	out := make([]model.ActivityWithTasks, 0)
	for rows.Next() {
		var act model.Activity
		var start, recurrence string
		if err := rows.Scan(&act.ID, &start, &act.EndClock, &recurrence, &act.RepeatCount,
			&act.Name, &act.Description, &act.Category,
			&act.GradientStart, &act.GradientEnd); err != nil {
			return nil, fmt.Errorf("cache: scan activity: %w", err)
		}
		act.Start, err = time.Parse(time.RFC3339Nano, start)
		if err != nil {
			return nil, fmt.Errorf("cache: activity %s has bad start time: %w", act.ID, err)
		}
		act.Recurrence = model.ParseRecurrence(recurrence)
		out = append(out, model.ActivityWithTasks{Activity: act})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterate activities: %w", err)
	}

	for i := range out {
		tasks, err := c.tasksFor(ctx, out[i].Activity.ID)
		if err != nil {
			return nil, err
		}
		out[i].Tasks = tasks
	}

	return out, nil
}

func (c *Cache) tasksFor(ctx context.Context, activityID string) ([]model.Task, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, priority, name, description, task_index, color, status
		FROM tasks WHERE activity_id = ? ORDER BY task_index`, activityID)
	if err != nil {
		return nil, fmt.Errorf("cache: query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task := model.Task{ActivityID: activityID}
		if err := rows.Scan(&task.ID, &task.Priority, &task.Name, &task.Description,
			&task.Index, &task.Color, &task.Status); err != nil {
			return nil, fmt.Errorf("cache: scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// LastSync returns when userID's mirror was last replaced. The second
// result is false when the user has never synced.
func (c *Cache) LastSync(ctx context.Context, userID string) (time.Time, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT synced_at FROM sync_state WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache: query sync state: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache: bad sync timestamp: %w", err)
	}
	return ts, true, nil
}
