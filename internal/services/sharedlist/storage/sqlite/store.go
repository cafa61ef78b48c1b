// Package sqlite provides the SQLite-backed realtime store for shared lists.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/taskflow/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/taskflow/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/filter"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/storage"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const taskColumns = `id, title, description, completed, priority, due_date, project,
       created_by, created_at, updated_at, updated_by`

// Store persists shared lists in SQLite and publishes committed changes.
type Store struct {
	sqlDB *sql.DB
	newID func() (string, error)

	mu          sync.Mutex
	nextSubID   int
	subscribers map[int]storage.ChangeFunc
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite shared list store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{
		sqlDB:       sqlDB,
		newID:       id.NewID,
		subscribers: make(map[int]storage.ChangeFunc),
	}, nil
}

// Close closes the SQLite handle and drops change subscribers.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.mu.Lock()
	s.subscribers = make(map[int]storage.ChangeFunc)
	s.mu.Unlock()
	return s.sqlDB.Close()
}

// Subscribe registers fn for committed changes.
func (s *Store) Subscribe(fn storage.ChangeFunc) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	subID := s.nextSubID
	s.subscribers[subID] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, subID)
	}
}

func (s *Store) publish(change storage.Change) {
	s.mu.Lock()
	fns := make([]storage.ChangeFunc, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// SetList inserts a new list. The creator is always stored as a
// collaborator.
func (s *Store) SetList(ctx context.Context, list sharedlist.List) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	listID := strings.TrimSpace(list.ID)
	name := strings.TrimSpace(list.Name)
	createdBy := sharedlist.NormalizeEmail(list.CreatedBy)
	if listID == "" {
		return fmt.Errorf("list id is required")
	}
	if name == "" {
		return fmt.Errorf("list name is required")
	}
	if createdBy == "" {
		return fmt.Errorf("list creator is required")
	}
	accessType := list.AccessType
	if accessType == "" {
		accessType = sharedlist.AccessPrivate
	}
	if !accessType.Valid() {
		return fmt.Errorf("invalid access type %q", accessType)
	}
	createdAt := list.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO shared_lists (id, name, created_by, access_type, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		listID,
		name,
		createdBy,
		string(accessType),
		toMillis(createdAt),
		toMillis(createdAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("set list: %w", err)
	}
	collaborators := append([]string{createdBy}, list.Collaborators...)
	if err := insertEmails(ctx, tx, "shared_list_collaborators", "added_at", listID, collaborators, createdAt); err != nil {
		return err
	}
	if err := insertEmails(ctx, tx, "shared_list_invitations", "invited_at", listID, list.PendingInvitations, createdAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set list: %w", err)
	}
	s.publish(storage.Change{ListID: listID, Path: storage.ListPath(listID), Kind: storage.ChangeSet, Version: 1})
	return nil
}

// GetList reads one list and its tasks from a single snapshot.
func (s *Store) GetList(ctx context.Context, listID string) (sharedlist.List, error) {
	if err := s.ready(ctx); err != nil {
		return sharedlist.List{}, err
	}
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return sharedlist.List{}, fmt.Errorf("list id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return sharedlist.List{}, fmt.Errorf("begin get list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var list sharedlist.List
	var accessType string
	var createdAt int64
	var updatedAt int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT id, name, created_by, access_type, version, created_at, updated_at
		   FROM shared_lists
		  WHERE id = ?`,
		listID,
	).Scan(&list.ID, &list.Name, &list.CreatedBy, &accessType, &list.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sharedlist.List{}, storage.ErrNotFound
		}
		return sharedlist.List{}, fmt.Errorf("get list: %w", err)
	}
	list.AccessType = sharedlist.AccessType(accessType)
	list.CreatedAt = fromMillis(createdAt)
	list.UpdatedAt = fromMillis(updatedAt)

	if list.Collaborators, err = queryEmails(ctx, tx, `SELECT email FROM shared_list_collaborators WHERE list_id = ? ORDER BY added_at, rowid`, listID); err != nil {
		return sharedlist.List{}, fmt.Errorf("get list collaborators: %w", err)
	}
	if list.PendingInvitations, err = queryEmails(ctx, tx, `SELECT email FROM shared_list_invitations WHERE list_id = ? ORDER BY invited_at, rowid`, listID); err != nil {
		return sharedlist.List{}, fmt.Errorf("get list invitations: %w", err)
	}
	if list.Tasks, err = queryTasks(ctx, tx, listID, filter.SQLCondition{}); err != nil {
		return sharedlist.List{}, err
	}
	return list, nil
}

// UpdateList merges patch into one list in a single transaction.
func (s *Store) UpdateList(ctx context.Context, listID string, patch storage.ListPatch) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return fmt.Errorf("list id is required")
	}
	if patch.AccessType != nil && !patch.AccessType.Valid() {
		return fmt.Errorf("invalid access type %q", *patch.AccessType)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return fmt.Errorf("list name is required")
	}
	updatedAt := patch.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := bumpVersion(ctx, tx, listID, updatedAt)
	if err != nil {
		return err
	}
	if patch.Name != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE shared_lists SET name = ? WHERE id = ?`, strings.TrimSpace(*patch.Name), listID); err != nil {
			return fmt.Errorf("update list name: %w", err)
		}
	}
	if patch.AccessType != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE shared_lists SET access_type = ? WHERE id = ?`, string(*patch.AccessType), listID); err != nil {
			return fmt.Errorf("update list access type: %w", err)
		}
	}
	if err := insertEmails(ctx, tx, "shared_list_collaborators", "added_at", listID, patch.AddCollaborators, updatedAt); err != nil {
		return err
	}
	if err := insertEmails(ctx, tx, "shared_list_invitations", "invited_at", listID, patch.AddInvitations, updatedAt); err != nil {
		return err
	}
	for _, email := range patch.RemoveInvitations {
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM shared_list_invitations WHERE list_id = ? AND email = ?`,
			listID,
			sharedlist.NormalizeEmail(email),
		); err != nil {
			return fmt.Errorf("remove invitation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update list: %w", err)
	}
	s.publish(storage.Change{ListID: listID, Path: storage.ListPath(listID), Kind: storage.ChangeUpdate, Version: version})
	return nil
}

// PushTask appends a task under a generated key.
func (s *Store) PushTask(ctx context.Context, listID string, task sharedlist.Task) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	listID = strings.TrimSpace(listID)
	title := strings.TrimSpace(task.Title)
	if listID == "" {
		return "", fmt.Errorf("list id is required")
	}
	if title == "" {
		return "", fmt.Errorf("task title is required")
	}
	priority := task.Priority
	if priority == "" {
		priority = sharedlist.PriorityMedium
	}
	if !priority.Valid() {
		return "", fmt.Errorf("invalid priority %q", priority)
	}
	createdAt := task.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedBy := task.UpdatedBy
	if updatedBy == "" {
		updatedBy = task.CreatedBy
	}
	taskID, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin push task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := bumpVersion(ctx, tx, listID, createdAt)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO shared_list_tasks (
		   list_id, id, position, title, description, completed, priority,
		   due_date, project, created_by, created_at, updated_at, updated_by
		 ) VALUES (
		   ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM shared_list_tasks WHERE list_id = ?),
		   ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 )`,
		listID,
		taskID,
		listID,
		title,
		strings.TrimSpace(task.Description),
		task.Completed,
		string(priority),
		strings.TrimSpace(task.DueDate),
		strings.TrimSpace(task.Project),
		sharedlist.NormalizeEmail(task.CreatedBy),
		toMillis(createdAt),
		toMillis(createdAt),
		sharedlist.NormalizeEmail(updatedBy),
	); err != nil {
		return "", fmt.Errorf("push task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit push task: %w", err)
	}
	s.publish(storage.Change{ListID: listID, Path: storage.TaskPath(listID, taskID), Kind: storage.ChangePush, Version: version})
	return taskID, nil
}

// UpdateTask merges the non-nil fields of patch into one task.
func (s *Store) UpdateTask(ctx context.Context, listID string, taskID string, patch storage.TaskPatch) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	listID = strings.TrimSpace(listID)
	taskID = strings.TrimSpace(taskID)
	if listID == "" || taskID == "" {
		return fmt.Errorf("list id and task id are required")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", *patch.Priority)
	}
	updatedAt := patch.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	sets := []string{"updated_at = ?", "updated_by = ?"}
	args := []any{toMillis(updatedAt), sharedlist.NormalizeEmail(patch.UpdatedBy)}
	addString := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, strings.TrimSpace(*value))
		}
	}
	addString("title", patch.Title)
	addString("description", patch.Description)
	addString("due_date", patch.DueDate)
	addString("project", patch.Project)
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*patch.Priority))
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *patch.Completed)
	}
	args = append(args, listID, taskID)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := bumpVersion(ctx, tx, listID, updatedAt)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(
		ctx,
		`UPDATE shared_list_tasks SET `+strings.Join(sets, ", ")+` WHERE list_id = ? AND id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update task: %w", err)
	}
	s.publish(storage.Change{ListID: listID, Path: storage.TaskPath(listID, taskID), Kind: storage.ChangeUpdate, Version: version})
	return nil
}

// ToggleTask flips the completed flag of one task inside a single write and
// returns the stored value.
func (s *Store) ToggleTask(ctx context.Context, listID string, taskID string, updatedAt time.Time, updatedBy string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	listID = strings.TrimSpace(listID)
	taskID = strings.TrimSpace(taskID)
	if listID == "" || taskID == "" {
		return false, fmt.Errorf("list id and task id are required")
	}
	updatedAt = updatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := bumpVersion(ctx, tx, listID, updatedAt)
	if err != nil {
		return false, err
	}
	var completed bool
	err = tx.QueryRowContext(
		ctx,
		`UPDATE shared_list_tasks
		 SET completed = NOT completed, updated_at = ?, updated_by = ?
		 WHERE list_id = ? AND id = ?
		 RETURNING completed`,
		toMillis(updatedAt),
		sharedlist.NormalizeEmail(updatedBy),
		listID,
		taskID,
	).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit toggle task: %w", err)
	}
	s.publish(storage.Change{ListID: listID, Path: storage.TaskPath(listID, taskID), Kind: storage.ChangeUpdate, Version: version})
	return completed, nil
}

// RemoveTask deletes one task.
func (s *Store) RemoveTask(ctx context.Context, listID string, taskID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	listID = strings.TrimSpace(listID)
	taskID = strings.TrimSpace(taskID)
	if listID == "" || taskID == "" {
		return fmt.Errorf("list id and task id are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	version, err := bumpVersion(ctx, tx, listID, time.Now().UTC())
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM shared_list_tasks WHERE list_id = ? AND id = ?`, listID, taskID)
	if err != nil {
		return fmt.Errorf("remove task: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove task: %w", err)
	}
	s.publish(storage.Change{ListID: listID, Path: storage.TaskPath(listID, taskID), Kind: storage.ChangeRemove, Version: version})
	return nil
}

// QueryTasks returns the tasks of one list that match cond.
func (s *Store) QueryTasks(ctx context.Context, listID string, cond filter.SQLCondition) ([]sharedlist.Task, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return nil, fmt.Errorf("list id is required")
	}
	return queryTasks(ctx, s.sqlDB, listID, cond)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTasks(ctx context.Context, q queryer, listID string, cond filter.SQLCondition) ([]sharedlist.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM shared_list_tasks WHERE list_id = ?`
	args := []any{listID}
	if !cond.Empty() {
		query += ` AND (` + cond.Clause + `)`
		args = append(args, cond.Params...)
	}
	query += ` ORDER BY position ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]sharedlist.Task, 0)
	for rows.Next() {
		var task sharedlist.Task
		var priority string
		var createdAt int64
		var updatedAt int64
		if err := rows.Scan(
			&task.ID,
			&task.Title,
			&task.Description,
			&task.Completed,
			&priority,
			&task.DueDate,
			&task.Project,
			&task.CreatedBy,
			&createdAt,
			&updatedAt,
			&task.UpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("query tasks: %w", err)
		}
		task.Priority = sharedlist.Priority(priority)
		task.CreatedAt = fromMillis(createdAt)
		task.UpdatedAt = fromMillis(updatedAt)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return tasks, nil
}

// bumpVersion takes the write lock for listID and returns its new version.
func bumpVersion(ctx context.Context, tx *sql.Tx, listID string, updatedAt time.Time) (int64, error) {
	var version int64
	err := tx.QueryRowContext(
		ctx,
		`UPDATE shared_lists SET version = version + 1, updated_at = ? WHERE id = ? RETURNING version`,
		toMillis(updatedAt),
		listID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("bump list version: %w", err)
	}
	return version, nil
}

func insertEmails(ctx context.Context, tx *sql.Tx, table string, timeColumn string, listID string, emails []string, at time.Time) error {
	for _, email := range emails {
		email = sharedlist.NormalizeEmail(email)
		if email == "" {
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO `+table+` (list_id, email, `+timeColumn+`) VALUES (?, ?, ?)`,
			listID,
			email,
			toMillis(at),
		); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func queryEmails(ctx context.Context, tx *sql.Tx, query string, listID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
