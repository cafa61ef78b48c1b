// Package bbolt implements per-owner personal storage on BoltDB with JSON
// values.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/louisbranch/taskflow/internal/services/personal"
	"github.com/louisbranch/taskflow/internal/services/personal/focus"
	"github.com/louisbranch/taskflow/internal/services/personal/storage"
)

const ownersBucket = "owners"

const (
	tasksBucket       = "tasks"
	taskListsBucket   = "task_lists"
	reflectionsBucket = "reflections"
	plannerBucket     = "planner_events"
	settingsBucket    = "settings"
	focusBucket       = "focus"
)

var ownerBuckets = []string{tasksBucket, taskListsBucket, reflectionsBucket, plannerBucket, settingsBucket, focusBucket}

// stateKey holds the single record of the settings and focus buckets.
var stateKey = []byte("state")

// Store provides a BoltDB-backed personal store. Each owner gets a nested
// bucket holding one bucket per record kind.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutTask persists a task record.
func (s *Store) PutTask(ctx context.Context, ownerID string, task personal.Task) error {
	if err := s.ready(ctx, ownerID); err != nil {
		return err
	}
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	return s.update(ownerID, tasksBucket, func(b *bbolt.Bucket) error {
		return putJSON(b, []byte(task.ID), task)
	})
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, ownerID string, taskID string) (personal.Task, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.Task{}, err
	}
	var task personal.Task
	err := s.view(ownerID, tasksBucket, func(b *bbolt.Bucket) error {
		return getJSON(b, []byte(strings.TrimSpace(taskID)), &task)
	})
	return task, err
}

// ListTasks returns every task of the owner, oldest first.
func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]personal.Task, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return nil, err
	}
	tasks := []personal.Task{}
	err := s.view(ownerID, tasksBucket, func(b *bbolt.Bucket) error {
		return b.ForEach(func(_, payload []byte) error {
			var task personal.Task
			if err := json.Unmarshal(payload, &task); err != nil {
				return fmt.Errorf("unmarshal task: %w", err)
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, ownerID string, taskID string) error {
	if err := s.ready(ctx, ownerID); err != nil {
		return err
	}
	return s.update(ownerID, tasksBucket, func(b *bbolt.Bucket) error {
		return deleteKey(b, []byte(strings.TrimSpace(taskID)))
	})
}

// PutTaskList persists a task list.
func (s *Store) PutTaskList(ctx context.Context, ownerID string, list personal.TaskList) error {
	if err := s.ready(ctx, ownerID); err != nil {
		return err
	}
	if strings.TrimSpace(list.ID) == "" {
		return fmt.Errorf("task list id is required")
	}
	return s.update(ownerID, taskListsBucket, func(b *bbolt.Bucket) error {
		return putJSON(b, []byte(list.ID), list)
	})
}

// GetTaskList fetches a task list by id.
func (s *Store) GetTaskList(ctx context.Context, ownerID string, listID string) (personal.TaskList, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.TaskList{}, err
	}
	var list personal.TaskList
	err := s.view(ownerID, taskListsBucket, func(b *bbolt.Bucket) error {
		return getJSON(b, []byte(strings.TrimSpace(listID)), &list)
	})
	return list, err
}

// ListTaskLists returns task lists oldest first.
func (s *Store) ListTaskLists(ctx context.Context, ownerID string) ([]personal.TaskList, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return nil, err
	}
	lists := []personal.TaskList{}
	err := s.view(ownerID, taskListsBucket, func(b *bbolt.Bucket) error {
		return b.ForEach(func(_, payload []byte) error {
			var list personal.TaskList
			if err := json.Unmarshal(payload, &list); err != nil {
				return fmt.Errorf("unmarshal task list: %w", err)
			}
			lists = append(lists, list)
			return nil
		})
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	sort.SliceStable(lists, func(i, j int) bool {
		if !lists[i].CreatedAt.Equal(lists[j].CreatedAt) {
			return lists[i].CreatedAt.Before(lists[j].CreatedAt)
		}
		return lists[i].ID < lists[j].ID
	})
	return lists, nil
}

// DeleteTaskList removes a task list and clears its id from tasks in the
// same transaction.
func (s *Store) DeleteTaskList(ctx context.Context, ownerID string, listID string) error {
	if err := s.ready(ctx, ownerID); err != nil {
		return err
	}
	listID = strings.TrimSpace(listID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		if err := deleteKey(owner.Bucket([]byte(taskListsBucket)), []byte(listID)); err != nil {
			return err
		}
		tasks := owner.Bucket([]byte(tasksBucket))
		var cleared []personal.Task
		err = tasks.ForEach(func(_, payload []byte) error {
			var task personal.Task
			if err := json.Unmarshal(payload, &task); err != nil {
				return fmt.Errorf("unmarshal task: %w", err)
			}
			if task.ListID == listID {
				task.ListID = ""
				cleared = append(cleared, task)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, task := range cleared {
			if err := putJSON(tasks, []byte(task.ID), task); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveReflection writes the reflection for its date, keeping the id and
// creation time of an existing record.
func (s *Store) SaveReflection(ctx context.Context, ownerID string, reflection personal.Reflection) (personal.Reflection, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.Reflection{}, err
	}
	if strings.TrimSpace(reflection.Date) == "" {
		return personal.Reflection{}, fmt.Errorf("reflection date is required")
	}
	err := s.update(ownerID, reflectionsBucket, func(b *bbolt.Bucket) error {
		key := []byte(reflection.Date)
		var existing personal.Reflection
		err := getJSON(b, key, &existing)
		switch {
		case err == nil:
			reflection.ID = existing.ID
			reflection.CreatedAt = existing.CreatedAt
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
		if strings.TrimSpace(reflection.ID) == "" {
			return fmt.Errorf("reflection id is required")
		}
		return putJSON(b, key, reflection)
	})
	if err != nil {
		return personal.Reflection{}, err
	}
	return reflection, nil
}

// GetReflection fetches the reflection for date.
func (s *Store) GetReflection(ctx context.Context, ownerID string, date string) (personal.Reflection, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.Reflection{}, err
	}
	var reflection personal.Reflection
	err := s.view(ownerID, reflectionsBucket, func(b *bbolt.Bucket) error {
		return getJSON(b, []byte(strings.TrimSpace(date)), &reflection)
	})
	return reflection, err
}

// ListReflections returns reflections newest date first.
func (s *Store) ListReflections(ctx context.Context, ownerID string) ([]personal.Reflection, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return nil, err
	}
	reflections := []personal.Reflection{}
	err := s.view(ownerID, reflectionsBucket, func(b *bbolt.Bucket) error {
		// Date keys sort chronologically, so walk the cursor backwards.
		c := b.Cursor()
		for key, payload := c.Last(); key != nil; key, payload = c.Prev() {
			var reflection personal.Reflection
			if err := json.Unmarshal(payload, &reflection); err != nil {
				return fmt.Errorf("unmarshal reflection: %w", err)
			}
			reflections = append(reflections, reflection)
		}
		return nil
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return reflections, nil
}

// PutPlannerEvent persists a planner event.
func (s *Store) PutPlannerEvent(ctx context.Context, ownerID string, event personal.PlannerEvent) error {
	if err := s.ready(ctx, ownerID); err != nil {
		return err
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("planner event id is required")
	}
	return s.update(ownerID, plannerBucket, func(b *bbolt.Bucket) error {
		return putJSON(b, []byte(event.ID), event)
	})
}

// ListPlannerEvents returns events on date, or all events when date is
// empty, ordered by date and start time.
func (s *Store) ListPlannerEvents(ctx context.Context, ownerID string, date string) ([]personal.PlannerEvent, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return nil, err
	}
	date = strings.TrimSpace(date)
	events := []personal.PlannerEvent{}
	err := s.view(ownerID, plannerBucket, func(b *bbolt.Bucket) error {
		return b.ForEach(func(_, payload []byte) error {
			var event personal.PlannerEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("unmarshal planner event: %w", err)
			}
			if date == "" || event.Date == date {
				events = append(events, event)
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		if events[i].Start != events[j].Start {
			return events[i].Start < events[j].Start
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

// DeletePlannerEvent removes a planner event.
func (s *Store) DeletePlannerEvent(ctx context.Context, ownerID string, eventID string) error {
	if err := s.ready(ctx, ownerID); err != nil {
		return err
	}
	return s.update(ownerID, plannerBucket, func(b *bbolt.Bucket) error {
		return deleteKey(b, []byte(strings.TrimSpace(eventID)))
	})
}

// GetSettings returns the owner's settings, or defaults when none were saved.
func (s *Store) GetSettings(ctx context.Context, ownerID string) (personal.Settings, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.Settings{}, err
	}
	settings := personal.DefaultSettings()
	err := s.view(ownerID, settingsBucket, func(b *bbolt.Bucket) error {
		return getJSON(b, stateKey, &settings)
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return personal.Settings{}, err
	}
	return normalizeSettings(settings), nil
}

// UpdateSettings applies fn to the stored settings in one transaction.
func (s *Store) UpdateSettings(ctx context.Context, ownerID string, fn func(*personal.Settings) error) (personal.Settings, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.Settings{}, err
	}
	var settings personal.Settings
	err := s.update(ownerID, settingsBucket, func(b *bbolt.Bucket) error {
		settings = personal.DefaultSettings()
		if err := getJSON(b, stateKey, &settings); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		settings = normalizeSettings(settings)
		if err := fn(&settings); err != nil {
			return err
		}
		return putJSON(b, stateKey, settings)
	})
	if err != nil {
		return personal.Settings{}, err
	}
	return settings, nil
}

// GetFocus returns the owner's focus state, or an idle timer when none was
// saved.
func (s *Store) GetFocus(ctx context.Context, ownerID string) (personal.FocusState, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.FocusState{}, err
	}
	state := personal.NewFocusState(focus.DefaultConfig())
	err := s.view(ownerID, focusBucket, func(b *bbolt.Bucket) error {
		return getJSON(b, stateKey, &state)
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return personal.FocusState{}, err
	}
	return state, nil
}

// UpdateFocus applies fn to the stored focus state in one transaction.
func (s *Store) UpdateFocus(ctx context.Context, ownerID string, fn func(*personal.FocusState) error) (personal.FocusState, error) {
	if err := s.ready(ctx, ownerID); err != nil {
		return personal.FocusState{}, err
	}
	var state personal.FocusState
	err := s.update(ownerID, focusBucket, func(b *bbolt.Bucket) error {
		state = personal.NewFocusState(focus.DefaultConfig())
		if err := getJSON(b, stateKey, &state); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		return putJSON(b, stateKey, state)
	})
	if err != nil {
		return personal.FocusState{}, err
	}
	return state, nil
}

func (s *Store) ready(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("owner id is required")
	}
	return nil
}

// view runs fn against one of the owner's buckets. A missing owner reads as
// ErrNotFound.
func (s *Store) view(ownerID string, name string, fn func(*bbolt.Bucket) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(ownersBucket))
		if root == nil {
			return fmt.Errorf("owners bucket is missing")
		}
		owner := root.Bucket([]byte(ownerID))
		if owner == nil {
			return storage.ErrNotFound
		}
		bucket := owner.Bucket([]byte(name))
		if bucket == nil {
			return storage.ErrNotFound
		}
		return fn(bucket)
	})
}

// update runs fn against one of the owner's buckets, creating them first.
func (s *Store) update(ownerID string, name string, fn func(*bbolt.Bucket) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		owner, err := ownerBucket(tx, ownerID)
		if err != nil {
			return err
		}
		return fn(owner.Bucket([]byte(name)))
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ownersBucket))
		if err != nil {
			return fmt.Errorf("create owners bucket: %w", err)
		}
		return nil
	})
}

func ownerBucket(tx *bbolt.Tx, ownerID string) (*bbolt.Bucket, error) {
	root := tx.Bucket([]byte(ownersBucket))
	if root == nil {
		return nil, fmt.Errorf("owners bucket is missing")
	}
	owner, err := root.CreateBucketIfNotExists([]byte(ownerID))
	if err != nil {
		return nil, fmt.Errorf("create owner bucket: %w", err)
	}
	for _, name := range ownerBuckets {
		if _, err := owner.CreateBucketIfNotExists([]byte(name)); err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", name, err)
		}
	}
	return owner, nil
}

func putJSON(b *bbolt.Bucket, key []byte, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Put(key, payload)
}

func getJSON(b *bbolt.Bucket, key []byte, value any) error {
	payload := b.Get(key)
	if payload == nil {
		return storage.ErrNotFound
	}
	if err := json.Unmarshal(payload, value); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func deleteKey(b *bbolt.Bucket, key []byte) error {
	if b.Get(key) == nil {
		return storage.ErrNotFound
	}
	return b.Delete(key)
}

func normalizeSettings(settings personal.Settings) personal.Settings {
	if !settings.Theme.Valid() {
		settings.Theme = personal.ThemeLight
	}
	if settings.Onboarding == nil {
		settings.Onboarding = map[string]bool{}
	}
	settings.Focus = settings.Focus.Normalize()
	return settings
}

var _ storage.Store = (*Store)(nil)
