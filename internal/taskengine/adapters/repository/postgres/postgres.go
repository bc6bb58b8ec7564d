// Package postgres implements the Store interface over PostgreSQL via
// database/sql and lib/pq, grounded on the teacher's raw-SQL repository
// style (no ORM). Every composite operation runs inside one transaction;
// Claim uses a status = 'pending' predicate in the UPDATE WHERE clause rather
// than SELECT ... FOR UPDATE, retrying within the call when the
// compare-and-set loses the race (§4.A).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/taskflow-engine/taskflow/internal/platform/database"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/repository"
)

// Store implements repository.Store over a tasks table matching §3.1 and
// the indices listed in §6.
type Store struct {
	db *database.DB
}

// New wraps an already-connected database.DB as a task Store.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Close implements repository.Store.
func (s *Store) Close() error { return s.db.Close() }

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullStringPtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Insert implements repository.Store.
func (s *Store) Insert(ctx context.Context, tasks []*model.Task, opts model.InsertOptions) ([]int64, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	var ids []int64

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var parent *model.Task
		if opts.ParentID != nil {
			p, err := getForUpdate(ctx, tx, *opts.ParentID)
			if err != nil {
				return err
			}
			if p.Status != model.StatusRunning {
				return fmt.Errorf("%w: parent %d is %s", model.ErrParentNotRunning, p.ID, p.Status)
			}
			parent = p
		}

		now := time.Now()
		ids = make([]int64, 0, len(tasks))

		for _, t := range tasks {
			if t.Name == "" {
				return fmt.Errorf("%w: task name is required", model.ErrInvalidTask)
			}
			if parent != nil {
				t.Type = model.TypeAsync
			}
			if !t.Type.Valid() {
				return fmt.Errorf("%w: unsupported type %q", model.ErrInvalidTask, t.Type)
			}
			if t.Status == "" {
				t.Status = model.StatusPending
			}
			if t.NextRunTime == nil {
				nrt := now
				t.NextRunTime = &nrt
			}
			if t.TimeoutSeconds == 0 {
				t.TimeoutSeconds = model.DefaultTimeoutSeconds
			}
			if t.MaxRetries == 0 {
				t.MaxRetries = model.DefaultMaxRetries
			}
			if opts.ParentID != nil {
				t.ParentID = opts.ParentID
			}
			rootID := opts.RootID
			if rootID != nil {
				t.RootID = rootID
			}

			var id int64
			row := tx.QueryRowContext(ctx, `
				INSERT INTO tasks (
					name, type, status, priority, payload, tag, created_at,
					next_run_time, timeout, retry_count, max_retries, retry_interval,
					cron_expr, root_id, parent_id, total_children, completed_children, stage
				) VALUES (
					$1, $2, $3, $4, $5, $6, $7,
					$8, $9, $10, $11, $12,
					$13, $14, $15, 0, 0, 0
				) RETURNING id`,
				t.Name, string(t.Type), string(t.Status), t.Priority, []byte(t.Payload), nullStringPtr(t.Tag), now,
				*t.NextRunTime, t.TimeoutSeconds, t.RetryCount, t.MaxRetries, t.RetryInterval,
				nullStringPtr(t.CronExpr), nullInt64Ptr(rootID), nullInt64Ptr(t.ParentID),
			)
			if err := row.Scan(&id); err != nil {
				return fmt.Errorf("inserting task %q: %w", t.Name, err)
			}

			t.ID = id
			if rootID == nil {
				t.RootID = &id
				if _, err := tx.ExecContext(ctx, `UPDATE tasks SET root_id = $1 WHERE id = $1`, id); err != nil {
					return fmt.Errorf("backfilling root_id for task %d: %w", id, err)
				}
			}
			ids = append(ids, id)
		}

		if parent != nil {
			_, err := tx.ExecContext(ctx, `
				UPDATE tasks SET
					total_children = total_children + $2,
					status = $3,
					context = COALESCE($4, context),
					result = NULL
				WHERE id = $1`,
				parent.ID, len(tasks), string(model.StatusSuspended), nullBytes(opts.Context),
			)
			if err != nil {
				return fmt.Errorf("suspending parent %d: %w", parent.ID, err)
			}
		}

		return nil
	})

	return ids, err
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func getForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Task, error) {
	row := tx.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// Claim implements repository.Store. It loops: pick the best pending
// candidate, attempt an UPDATE gated on status = 'pending' still holding,
// and retry against the next-best candidate if another worker won the
// race — all inside one transaction per spec's claim semantics.
func (s *Store) Claim(ctx context.Context, names []string, workerID string) (*model.Task, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if workerID == "" {
		return nil, model.ErrInvalidWorkerID
	}

	var claimed *model.Task

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		excluded := make([]int64, 0)

		for {
			query := taskSelectColumns + `
				FROM tasks
				WHERE status = $1 AND name = ANY($2) AND next_run_time <= now()`
			args := []interface{}{string(model.StatusPending), pq.Array(names)}
			if len(excluded) > 0 {
				query += ` AND NOT (id = ANY($3))`
				args = append(args, pq.Array(excluded))
			}
			query += ` ORDER BY priority DESC, next_run_time ASC, id ASC LIMIT 1`

			row := tx.QueryRowContext(ctx, query, args...)
			candidate, err := scanTask(row)
			if err == sql.ErrNoRows {
				return nil
			}
			if err != nil {
				return err
			}

			now := time.Now()
			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET status = $1, last_active_time = $2, start_time = $2, worker_id = $3
				WHERE id = $4 AND status = $5`,
				string(model.StatusRunning), now, workerID, candidate.ID, string(model.StatusPending),
			)
			if err != nil {
				return fmt.Errorf("claiming task %d: %w", candidate.ID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				// Another worker claimed it between our SELECT and UPDATE;
				// exclude it and retry against the next-best candidate.
				excluded = append(excluded, candidate.ID)
				continue
			}

			candidate.Status = model.StatusRunning
			candidate.LastActiveTime = &now
			candidate.StartTime = &now
			candidate.WorkerID = &workerID
			claimed = candidate
			return nil
		}
	})

	return claimed, err
}

// UpdateStatus implements repository.Store.
func (s *Store) UpdateStatus(ctx context.Context, id int64, newStatus model.Status, opts model.StatusUpdate) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = $1`, id)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %d", model.ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		if !model.CanTransition(t.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, t.Status, newStatus)
		}

		now := time.Now()
		setClauses := []string{"status = $1", "last_active_time = $2"}
		args := []interface{}{string(newStatus), now}
		argN := 3

		addSet := func(clause string, val interface{}) {
			setClauses = append(setClauses, fmt.Sprintf("%s = $%d", clause, argN))
			args = append(args, val)
			argN++
		}

		if opts.Result != nil {
			addSet("result", *opts.Result)
		}
		if opts.Error != nil {
			addSet("error", *opts.Error)
		}
		if opts.NextRunTime != nil {
			addSet("next_run_time", *opts.NextRunTime)
		}
		if opts.RetryCount != nil {
			addSet("retry_count", *opts.RetryCount)
		}

		query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d AND status = $%d`,
			strings.Join(setClauses, ", "), argN, argN+1)
		args = append(args, id, string(t.Status))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating task %d status: %w", id, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: %s -> %s (row changed concurrently)", model.ErrInvalidTransition, t.Status, newStatus)
		}

		parentID := opts.ParentID
		if parentID == nil {
			parentID = t.ParentID
		}

		if newStatus == model.StatusCompleted && parentID != nil {
			resultVal := "null"
			if opts.Result != nil {
				resultVal = *opts.Result
			} else if t.Result != nil {
				resultVal = *t.Result
			}
			if err := completeChild(ctx, tx, *parentID, id, resultVal, now); err != nil {
				return err
			}
		}

		return nil
	})
}

func completeChild(ctx context.Context, tx *sql.Tx, parentID, childID int64, childResultJSON string, now time.Time) error {
	row := tx.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = $1`, parentID)
	parent, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	existing := ""
	if parent.Result != nil {
		existing = *parent.Result
	}
	updated := model.AppendSuccess(existing, childID, childResultJSON)
	newCompleted := parent.CompletedChildren + 1

	if newCompleted >= parent.TotalChildren && parent.Status == model.StatusSuspended {
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET result = $1, completed_children = $2, status = $3, stage = stage + 1,
				last_active_time = $4, next_run_time = LEAST(COALESCE(next_run_time, $4), $4)
			WHERE id = $5`,
			updated, newCompleted, string(model.StatusPending), now, parentID,
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET result = $1, completed_children = $2 WHERE id = $3`,
			updated, newCompleted, parentID,
		)
	}
	if err != nil {
		return fmt.Errorf("updating parent %d on child completion: %w", parentID, err)
	}
	return nil
}

// UpdateActiveTime implements repository.Store.
func (s *Store) UpdateActiveTime(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET last_active_time = now() WHERE id = ANY($1) AND status = $2`,
		pq.Array(ids), string(model.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("bulk heartbeat: %w", err)
	}
	return nil
}

// HandleTimeouts implements the maintenance sweep (§4.G) inside a single
// transaction, running the steps in the documented order.
func (s *Store) HandleTimeouts(ctx context.Context, activeIntervalMS int64, expireSeconds *int64) (repository.SweepResult, error) {
	var result repository.SweepResult

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		now := time.Now()

		// Step 2: total-timeout detection.
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = $1, error = $2, last_active_time = $3
			WHERE status = $4 AND start_time IS NOT NULL
				AND start_time + (timeout * interval '1 second') < $3`,
			string(model.StatusTimeout), "Task exceeded total timeout limit", now, string(model.StatusRunning),
		)
		if err != nil {
			return fmt.Errorf("total-timeout sweep: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.TotalTimeouts = int(n)
		}

		// Step 3: heartbeat-lost detection.
		heartbeatLostSeconds := 5 * activeIntervalMS / 1000
		res, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = $1, error = $2, last_active_time = $3
			WHERE status = $4 AND last_active_time IS NOT NULL
				AND last_active_time + ($5 * interval '1 second') < $3`,
			string(model.StatusTimeout), "Task heartbeat lost — worker may be dead", now, string(model.StatusRunning), heartbeatLostSeconds,
		)
		if err != nil {
			return fmt.Errorf("heartbeat-lost sweep: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.HeartbeatTimeouts = int(n)
		}

		// Step 4: retry scheduling.
		res, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = $1, stage = 0, result = NULL, context = NULL,
				retry_count = retry_count + 1, last_active_time = $2,
				next_run_time = $2 + (retry_interval * interval '1 second')
			WHERE status IN ($3, $4) AND last_active_time IS NOT NULL
				AND retry_count < max_retries
				AND last_active_time + (retry_interval * interval '1 second') < $2`,
			string(model.StatusPending), now, string(model.StatusTimeout), string(model.StatusFailed),
		)
		if err != nil {
			return fmt.Errorf("retry scheduling: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.RetriesScheduled = int(n)
		}

		// Step 5: retry exhaustion — cron.
		res, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = $1
			WHERE status IN ($2, $3) AND type = $4 AND retry_count >= max_retries`,
			string(model.StatusPaused), string(model.StatusTimeout), string(model.StatusFailed), string(model.TypeCron),
		)
		if err != nil {
			return fmt.Errorf("retry exhaustion (cron): %w", err)
		}

		// Step 5: retry exhaustion — async, tracked for step 6's cascade.
		rows, err := tx.QueryContext(ctx, `
			SELECT id, parent_id, error FROM tasks
			WHERE status IN ($1, $2) AND type = $3 AND retry_count >= max_retries`,
			string(model.StatusTimeout), string(model.StatusFailed), string(model.TypeAsync),
		)
		if err != nil {
			return fmt.Errorf("retry exhaustion (async) select: %w", err)
		}
		type exhausted struct {
			id       int64
			parentID sql.NullInt64
			errMsg   sql.NullString
		}
		var toFail []exhausted
		for rows.Next() {
			var e exhausted
			if err := rows.Scan(&e.id, &e.parentID, &e.errMsg); err != nil {
				rows.Close()
				return fmt.Errorf("scanning exhausted task: %w", err)
			}
			toFail = append(toFail, e)
		}
		rows.Close()

		for _, e := range toFail {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = $1 WHERE id = $2`,
				string(model.StatusPermanentlyFailed), e.id); err != nil {
				return fmt.Errorf("marking task %d permanently failed: %w", e.id, err)
			}
			result.RetriesExhausted++
		}

		// Step 6: parent propagation of permanent failure.
		for _, e := range toFail {
			if !e.parentID.Valid {
				continue
			}
			row := tx.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = $1 AND status = $2`,
				e.parentID.Int64, string(model.StatusSuspended))
			parent, err := scanTask(row)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return fmt.Errorf("loading parent %d for cascade: %w", e.parentID.Int64, err)
			}

			errJSON := "null"
			if e.errMsg.Valid {
				b, _ := json.Marshal(e.errMsg.String)
				errJSON = string(b)
			}
			existing := ""
			if parent.Result != nil {
				existing = *parent.Result
			}
			updated := model.AppendFailure(existing, e.id, errJSON)
			newCompleted := parent.CompletedChildren + 1

			if newCompleted >= parent.TotalChildren {
				_, err = tx.ExecContext(ctx, `
					UPDATE tasks SET result = $1, completed_children = $2, status = $3, stage = stage + 1,
						last_active_time = $4, next_run_time = $4
					WHERE id = $5`,
					updated, newCompleted, string(model.StatusPending), now, parent.ID,
				)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE tasks SET result = $1, completed_children = $2 WHERE id = $3`,
					updated, newCompleted, parent.ID,
				)
			}
			if err != nil {
				return fmt.Errorf("cascading failure to parent %d: %w", parent.ID, err)
			}
			result.ParentsCascaded++
		}

		// Step 7: expiry GC.
		if expireSeconds != nil {
			res, err = tx.ExecContext(ctx, `
				DELETE FROM tasks
				WHERE status IN ($1, $2) AND last_active_time IS NOT NULL
					AND last_active_time < $3 - ($4 * interval '1 second')`,
				string(model.StatusCompleted), string(model.StatusPermanentlyFailed), now, *expireSeconds,
			)
			if err != nil {
				return fmt.Errorf("expiry gc: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				result.GCed = int(n)
			}
		}

		return nil
	})

	return result, err
}

const taskSelectColumns = `SELECT
	id, name, type, status, priority, payload, tag, created_at, next_run_time,
	last_active_time, start_time, timeout, retry_count, max_retries, retry_interval,
	cron_expr, root_id, parent_id, total_children, completed_children, stage,
	worker_id, result, error, context`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t                                 model.Task
		typ, status                       string
		tag, cronExpr, workerID           sql.NullString
		result, errStr                    sql.NullString
		nextRunTime, lastActiveTime       sql.NullTime
		startTime                         sql.NullTime
		rootID, parentID                  sql.NullInt64
		payload                           []byte
		contextBlob                       []byte
	)

	err := row.Scan(
		&t.ID, &t.Name, &typ, &status, &t.Priority, &payload, &tag, &t.CreatedAt, &nextRunTime,
		&lastActiveTime, &startTime, &t.TimeoutSeconds, &t.RetryCount, &t.MaxRetries, &t.RetryInterval,
		&cronExpr, &rootID, &parentID, &t.TotalChildren, &t.CompletedChildren, &t.Stage,
		&workerID, &result, &errStr, &contextBlob,
	)
	if err != nil {
		return nil, err
	}

	t.Type = model.Type(typ)
	t.Status = model.Status(status)
	t.Payload = json.RawMessage(payload)
	if tag.Valid {
		t.Tag = &tag.String
	}
	if cronExpr.Valid {
		t.CronExpr = &cronExpr.String
	}
	if workerID.Valid {
		t.WorkerID = &workerID.String
	}
	if result.Valid {
		t.Result = &result.String
	}
	if errStr.Valid {
		t.Error = &errStr.String
	}
	if nextRunTime.Valid {
		nt := nextRunTime.Time
		t.NextRunTime = &nt
	}
	if lastActiveTime.Valid {
		lt := lastActiveTime.Time
		t.LastActiveTime = &lt
	}
	if startTime.Valid {
		st := startTime.Time
		t.StartTime = &st
	}
	if rootID.Valid {
		id := rootID.Int64
		t.RootID = &id
	}
	if parentID.Valid {
		id := parentID.Int64
		t.ParentID = &id
	}
	t.Context = contextBlob

	return &t, nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", model.ErrNotFound, id)
	}
	return t, err
}

func (s *Store) queryTasks(ctx context.Context, whereClause string, args ...interface{}) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks `+whereClause+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetByName implements repository.Store.
func (s *Store) GetByName(ctx context.Context, name string) ([]*model.Task, error) {
	return s.queryTasks(ctx, `WHERE name = $1`, name)
}

// GetByStatus implements repository.Store.
func (s *Store) GetByStatus(ctx context.Context, status model.Status) ([]*model.Task, error) {
	return s.queryTasks(ctx, `WHERE status = $1`, string(status))
}

// GetByTag implements repository.Store.
func (s *Store) GetByTag(ctx context.Context, tag string) ([]*model.Task, error) {
	return s.queryTasks(ctx, `WHERE tag = $1`, tag)
}

// GetChildren implements repository.Store.
func (s *Store) GetChildren(ctx context.Context, parentID int64) ([]*model.Task, error) {
	return s.queryTasks(ctx, `WHERE parent_id = $1`, parentID)
}

// GetRunning implements repository.Store.
func (s *Store) GetRunning(ctx context.Context) ([]*model.Task, error) {
	return s.queryTasks(ctx, `WHERE status = $1`, string(model.StatusRunning))
}

// GetStatsByTag implements repository.Store.
func (s *Store) GetStatsByTag(ctx context.Context, tag *string, status *model.Status) ([]model.StatsRow, error) {
	query := `SELECT COALESCE(tag, ''), name, status, count(*) FROM tasks`
	var clauses []string
	var args []interface{}
	argN := 1

	if tag != nil {
		clauses = append(clauses, fmt.Sprintf("tag = $%d", argN))
		args = append(args, *tag)
		argN++
	}
	if status != nil {
		clauses = append(clauses, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(*status))
		argN++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " GROUP BY tag, name, status ORDER BY tag, name, status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	defer rows.Close()

	var out []model.StatsRow
	for rows.Next() {
		var r model.StatsRow
		var statusStr string
		if err := rows.Scan(&r.Tag, &r.Name, &statusStr, &r.Count); err != nil {
			return nil, err
		}
		r.Status = model.Status(statusStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetTasks implements repository.Store.
func (s *Store) GetTasks(ctx context.Context, filters model.Filters) ([]*model.Task, error) {
	var clauses []string
	var args []interface{}
	argN := 1

	if filters.Tag != nil {
		clauses = append(clauses, fmt.Sprintf("tag = $%d", argN))
		args = append(args, *filters.Tag)
		argN++
	}
	if filters.Name != nil {
		clauses = append(clauses, fmt.Sprintf("name = $%d", argN))
		args = append(args, *filters.Name)
		argN++
	}
	if filters.Status != nil {
		clauses = append(clauses, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(*filters.Status))
		argN++
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	return s.queryTasks(ctx, where, args...)
}

// Delete implements repository.Store.
func (s *Store) Delete(ctx context.Context, filters model.Filters) (int64, error) {
	var clauses []string
	var args []interface{}
	argN := 1

	if filters.Tag != nil {
		clauses = append(clauses, fmt.Sprintf("tag = $%d", argN))
		args = append(args, *filters.Tag)
		argN++
	}
	if filters.Name != nil {
		clauses = append(clauses, fmt.Sprintf("name = $%d", argN))
		args = append(args, *filters.Name)
		argN++
	}
	if filters.Status != nil {
		clauses = append(clauses, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(*filters.Status))
		argN++
	}

	query := "DELETE FROM tasks"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting tasks: %w", err)
	}
	return res.RowsAffected()
}
