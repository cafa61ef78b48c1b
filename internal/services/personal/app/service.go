// Package app implements the owner-scoped personal data operations.
package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/id"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/personal"
	"github.com/louisbranch/taskflow/internal/services/personal/focus"
	"github.com/louisbranch/taskflow/internal/services/personal/storage"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
)

var (
	clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// TaskInput describes a new private task.
type TaskInput struct {
	Title       string
	Description string
	Priority    sharedlist.Priority
	DueDate     string
	Project     string
	ListID      string
}

// TaskUpdate is a partial task change. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *sharedlist.Priority
	DueDate     *string
	Project     *string
	ListID      *string
}

// TaskQuery filters private tasks. Empty fields match everything.
type TaskQuery struct {
	ListID    string
	Completed *bool
}

// ReflectionInput is the body of a daily reflection.
type ReflectionInput struct {
	Accomplishments string
	Challenges      string
	Insights        string
}

// PlannerEventInput describes a new planner event.
type PlannerEventInput struct {
	Date  string
	Start string
	End   string
	Title string
	Notes string
}

// SettingsUpdate changes settings. Nil fields are left unchanged.
type SettingsUpdate struct {
	Theme *personal.Theme
	Focus *focus.Config
}

// FocusView is the focus state with the remaining time computed for now.
type FocusView struct {
	personal.FocusState
	Remaining time.Duration
	// Earned is the focus time credited by this call.
	Earned time.Duration
}

// Service runs personal data operations for one owner at a time. Guests are
// allowed; their data is keyed by the guest id.
type Service struct {
	store storage.Store
	now   func() time.Time
	newID func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a personal data service.
func NewService(store storage.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("personal store is required")
	}
	s := &Service{store: store, now: time.Now, newID: id.NewID}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateTask stores a new private task.
func (s *Service) CreateTask(ctx context.Context, actor identity.Identity, input TaskInput) (personal.Task, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Task{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return personal.Task{}, apperrors.New(apperrors.CodeTaskTitleEmpty, "task title is required")
	}
	priority := input.Priority
	if priority == "" {
		priority = sharedlist.PriorityMedium
	}
	if err := validatePriority(priority); err != nil {
		return personal.Task{}, err
	}
	if err := validateDate(input.DueDate, apperrors.CodeTaskInvalidDueDate); err != nil {
		return personal.Task{}, err
	}
	listID := strings.TrimSpace(input.ListID)
	if err := s.requireTaskList(ctx, owner, listID); err != nil {
		return personal.Task{}, err
	}
	taskID, err := s.newID()
	if err != nil {
		return personal.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	now := s.now().UTC()
	task := personal.Task{
		ID:          taskID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Priority:    priority,
		DueDate:     strings.TrimSpace(input.DueDate),
		Project:     strings.TrimSpace(input.Project),
		ListID:      listID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.PutTask(ctx, owner, task); err != nil {
		return personal.Task{}, storeError("create task", err)
	}
	return task, nil
}

// ListTasks returns the owner's tasks matching query, oldest first.
func (s *Service) ListTasks(ctx context.Context, actor identity.Identity, query TaskQuery) ([]personal.Task, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, owner)
	if err != nil {
		return nil, storeError("list tasks", err)
	}
	listID := strings.TrimSpace(query.ListID)
	return slices.DeleteFunc(tasks, func(task personal.Task) bool {
		if listID != "" && task.ListID != listID {
			return true
		}
		return query.Completed != nil && task.Completed != *query.Completed
	}), nil
}

// UpdateTask merges update into one task.
func (s *Service) UpdateTask(ctx context.Context, actor identity.Identity, taskID string, update TaskUpdate) (personal.Task, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Task{}, err
	}
	task, err := s.store.GetTask(ctx, owner, taskID)
	if err != nil {
		return personal.Task{}, taskError("load task", taskID, err)
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return personal.Task{}, apperrors.New(apperrors.CodeTaskTitleEmpty, "task title is required")
		}
		task.Title = title
	}
	if update.Description != nil {
		task.Description = strings.TrimSpace(*update.Description)
	}
	if update.Completed != nil {
		task.Completed = *update.Completed
	}
	if update.Priority != nil {
		if err := validatePriority(*update.Priority); err != nil {
			return personal.Task{}, err
		}
		task.Priority = *update.Priority
	}
	if update.DueDate != nil {
		if err := validateDate(*update.DueDate, apperrors.CodeTaskInvalidDueDate); err != nil {
			return personal.Task{}, err
		}
		task.DueDate = strings.TrimSpace(*update.DueDate)
	}
	if update.Project != nil {
		task.Project = strings.TrimSpace(*update.Project)
	}
	if update.ListID != nil {
		listID := strings.TrimSpace(*update.ListID)
		if err := s.requireTaskList(ctx, owner, listID); err != nil {
			return personal.Task{}, err
		}
		task.ListID = listID
	}
	task.UpdatedAt = s.now().UTC()
	if err := s.store.PutTask(ctx, owner, task); err != nil {
		return personal.Task{}, storeError("update task", err)
	}
	return task, nil
}

// DeleteTask removes one task.
func (s *Service) DeleteTask(ctx context.Context, actor identity.Identity, taskID string) error {
	owner, err := ownerOf(actor)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, owner, taskID); err != nil {
		return taskError("delete task", taskID, err)
	}
	return nil
}

// CreateTaskList stores a new task list tag.
func (s *Service) CreateTaskList(ctx context.Context, actor identity.Identity, name string, color string) (personal.TaskList, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.TaskList{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return personal.TaskList{}, apperrors.New(apperrors.CodeTaskListNameEmpty, "task list name is required")
	}
	color = strings.TrimSpace(color)
	if color != "" && !colorPattern.MatchString(color) {
		color = ""
	}
	listID, err := s.newID()
	if err != nil {
		return personal.TaskList{}, fmt.Errorf("generate task list id: %w", err)
	}
	list := personal.TaskList{ID: listID, Name: name, Color: strings.ToLower(color), CreatedAt: s.now().UTC()}
	if err := s.store.PutTaskList(ctx, owner, list); err != nil {
		return personal.TaskList{}, storeError("create task list", err)
	}
	return list, nil
}

// ListTaskLists returns the owner's task lists.
func (s *Service) ListTaskLists(ctx context.Context, actor identity.Identity) ([]personal.TaskList, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return nil, err
	}
	lists, err := s.store.ListTaskLists(ctx, owner)
	if err != nil {
		return nil, storeError("list task lists", err)
	}
	return lists, nil
}

// DeleteTaskList removes a task list; its tasks keep existing without it.
func (s *Service) DeleteTaskList(ctx context.Context, actor identity.Identity, listID string) error {
	owner, err := ownerOf(actor)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTaskList(ctx, owner, listID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(apperrors.CodeNotFound, "task list not found", map[string]string{"ListID": listID})
		}
		return storeError("delete task list", err)
	}
	return nil
}

// SaveReflection writes the reflection for date. Saving the same date again
// overwrites the entry and keeps its id.
func (s *Service) SaveReflection(ctx context.Context, actor identity.Identity, date string, input ReflectionInput) (personal.Reflection, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Reflection{}, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return personal.Reflection{}, apperrors.New(apperrors.CodeReflectionDateInvalid, "reflection date is required")
	}
	if err := validateDate(date, apperrors.CodeReflectionDateInvalid); err != nil {
		return personal.Reflection{}, err
	}
	reflectionID, err := s.newID()
	if err != nil {
		return personal.Reflection{}, fmt.Errorf("generate reflection id: %w", err)
	}
	now := s.now().UTC()
	saved, err := s.store.SaveReflection(ctx, owner, personal.Reflection{
		ID:              reflectionID,
		Date:            date,
		Accomplishments: strings.TrimSpace(input.Accomplishments),
		Challenges:      strings.TrimSpace(input.Challenges),
		Insights:        strings.TrimSpace(input.Insights),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return personal.Reflection{}, storeError("save reflection", err)
	}
	return saved, nil
}

// GetReflection returns the reflection for date.
func (s *Service) GetReflection(ctx context.Context, actor identity.Identity, date string) (personal.Reflection, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Reflection{}, err
	}
	if err := validateDate(date, apperrors.CodeReflectionDateInvalid); err != nil {
		return personal.Reflection{}, err
	}
	reflection, err := s.store.GetReflection(ctx, owner, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return personal.Reflection{}, apperrors.WithMetadata(apperrors.CodeNotFound, "reflection not found", map[string]string{"Date": date})
		}
		return personal.Reflection{}, storeError("get reflection", err)
	}
	return reflection, nil
}

// ListReflections returns the owner's reflections newest first.
func (s *Service) ListReflections(ctx context.Context, actor identity.Identity) ([]personal.Reflection, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return nil, err
	}
	reflections, err := s.store.ListReflections(ctx, owner)
	if err != nil {
		return nil, storeError("list reflections", err)
	}
	return reflections, nil
}

// AddPlannerEvent stores a planner event.
func (s *Service) AddPlannerEvent(ctx context.Context, actor identity.Identity, input PlannerEventInput) (personal.PlannerEvent, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.PlannerEvent{}, err
	}
	event := personal.PlannerEvent{
		Date:  strings.TrimSpace(input.Date),
		Start: strings.TrimSpace(input.Start),
		End:   strings.TrimSpace(input.End),
		Title: strings.TrimSpace(input.Title),
		Notes: strings.TrimSpace(input.Notes),
	}
	if !validPlannerEvent(event) {
		return personal.PlannerEvent{}, apperrors.New(apperrors.CodePlannerEventInvalid, "planner event is invalid")
	}
	eventID, err := s.newID()
	if err != nil {
		return personal.PlannerEvent{}, fmt.Errorf("generate planner event id: %w", err)
	}
	event.ID = eventID
	event.CreatedAt = s.now().UTC()
	if err := s.store.PutPlannerEvent(ctx, owner, event); err != nil {
		return personal.PlannerEvent{}, storeError("add planner event", err)
	}
	return event, nil
}

// ListPlannerEvents returns the owner's events on date, or all when empty.
func (s *Service) ListPlannerEvents(ctx context.Context, actor identity.Identity, date string) ([]personal.PlannerEvent, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return nil, err
	}
	if err := validateDate(date, apperrors.CodePlannerEventInvalid); err != nil {
		return nil, err
	}
	events, err := s.store.ListPlannerEvents(ctx, owner, date)
	if err != nil {
		return nil, storeError("list planner events", err)
	}
	return events, nil
}

// DeletePlannerEvent removes a planner event.
func (s *Service) DeletePlannerEvent(ctx context.Context, actor identity.Identity, eventID string) error {
	owner, err := ownerOf(actor)
	if err != nil {
		return err
	}
	if err := s.store.DeletePlannerEvent(ctx, owner, eventID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(apperrors.CodeNotFound, "planner event not found", map[string]string{"EventID": eventID})
		}
		return storeError("delete planner event", err)
	}
	return nil
}

// GetSettings returns the owner's settings.
func (s *Service) GetSettings(ctx context.Context, actor identity.Identity) (personal.Settings, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Settings{}, err
	}
	settings, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return personal.Settings{}, storeError("get settings", err)
	}
	return settings, nil
}

// UpdateSettings applies update to the owner's settings.
func (s *Service) UpdateSettings(ctx context.Context, actor identity.Identity, update SettingsUpdate) (personal.Settings, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Settings{}, err
	}
	if update.Theme != nil && !update.Theme.Valid() {
		return personal.Settings{}, apperrors.WithMetadata(apperrors.CodeSettingsInvalidTheme, "invalid theme", map[string]string{"Theme": string(*update.Theme)})
	}
	if update.Focus != nil {
		if err := update.Focus.Validate(); err != nil {
			return personal.Settings{}, apperrors.Wrap(apperrors.CodeSettingsInvalidFocus, "invalid focus config", err)
		}
	}
	settings, err := s.store.UpdateSettings(ctx, owner, func(settings *personal.Settings) error {
		if update.Theme != nil {
			settings.Theme = *update.Theme
		}
		if update.Focus != nil {
			settings.Focus = *update.Focus
		}
		return nil
	})
	if err != nil {
		return personal.Settings{}, storeError("update settings", err)
	}
	return settings, nil
}

// CompleteOnboarding marks one onboarding step done. Completing it again is a
// no-op.
func (s *Service) CompleteOnboarding(ctx context.Context, actor identity.Identity, flag string) (personal.Settings, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return personal.Settings{}, err
	}
	flag = strings.TrimSpace(flag)
	if !slices.Contains(personal.OnboardingFlags, flag) {
		return personal.Settings{}, apperrors.WithMetadata(apperrors.CodeOnboardingFlagInvalid, "unknown onboarding flag", map[string]string{"Flag": flag})
	}
	settings, err := s.store.UpdateSettings(ctx, owner, func(settings *personal.Settings) error {
		settings.Onboarding[flag] = true
		return nil
	})
	if err != nil {
		return personal.Settings{}, storeError("complete onboarding", err)
	}
	return settings, nil
}

// Focus returns the timer state, crediting a work phase that ended since the
// last call.
func (s *Service) Focus(ctx context.Context, actor identity.Identity) (FocusView, error) {
	return s.updateFocus(ctx, actor, func(state *personal.FocusState, now time.Time) (time.Duration, error) {
		endsAt := state.Timer.EndsAt
		earned := state.Timer.Tick(now)
		state.Credit(earned, endsAt)
		return earned, nil
	})
}

// FocusAction applies a timer action. An idle timer picks up the owner's
// current focus settings before starting.
func (s *Service) FocusAction(ctx context.Context, actor identity.Identity, action focus.Action) (FocusView, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return FocusView{}, err
	}
	settings, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return FocusView{}, storeError("get settings", err)
	}
	return s.updateFocus(ctx, actor, func(state *personal.FocusState, now time.Time) (time.Duration, error) {
		endsAt := state.Timer.EndsAt
		if state.Timer.Status == focus.StatusIdle || state.Timer.Status == "" {
			state.Timer.Config = settings.Focus
		}
		earned, err := state.Timer.Apply(action, now)
		state.Credit(earned, endsAt)
		if err != nil {
			return earned, apperrors.WithMetadata(apperrors.CodeFocusInvalidAction, err.Error(), map[string]string{"Action": string(action)})
		}
		if action == focus.ActionReset {
			state.Timer.Config = settings.Focus
		}
		return earned, nil
	})
}

func (s *Service) updateFocus(ctx context.Context, actor identity.Identity, fn func(*personal.FocusState, time.Time) (time.Duration, error)) (FocusView, error) {
	owner, err := ownerOf(actor)
	if err != nil {
		return FocusView{}, err
	}
	now := s.now().UTC()
	var earned time.Duration
	state, err := s.store.UpdateFocus(ctx, owner, func(state *personal.FocusState) error {
		var err error
		earned, err = fn(state, now)
		return err
	})
	if err != nil {
		return FocusView{}, storeError("update focus", err)
	}
	return FocusView{FocusState: state, Remaining: state.Timer.RemainingAt(now), Earned: earned}, nil
}

func (s *Service) requireTaskList(ctx context.Context, owner string, listID string) error {
	if listID == "" {
		return nil
	}
	if _, err := s.store.GetTaskList(ctx, owner, listID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(apperrors.CodeNotFound, "task list not found", map[string]string{"ListID": listID})
		}
		return storeError("load task list", err)
	}
	return nil
}

// ownerOf returns the storage namespace of actor.
func ownerOf(actor identity.Identity) (string, error) {
	if actor.IsZero() {
		return "", apperrors.New(apperrors.CodeAuthSessionInvalid, "sign in required")
	}
	return actor.ID, nil
}

func validatePriority(priority sharedlist.Priority) error {
	if !priority.Valid() {
		return apperrors.WithMetadata(apperrors.CodeTaskInvalidPriority, "invalid priority", map[string]string{"Priority": string(priority)})
	}
	return nil
}

// validateDate accepts an empty value or a YYYY-MM-DD date.
func validateDate(value string, code apperrors.Code) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := time.Parse(personal.DateLayout, value); err != nil {
		return apperrors.WithMetadata(code, "date must be YYYY-MM-DD", map[string]string{"Date": value})
	}
	return nil
}

func validPlannerEvent(event personal.PlannerEvent) bool {
	if event.Title == "" || event.Date == "" {
		return false
	}
	if _, err := time.Parse(personal.DateLayout, event.Date); err != nil {
		return false
	}
	if !clockPattern.MatchString(event.Start) || !clockPattern.MatchString(event.End) {
		return false
	}
	return event.Start < event.End
}

func taskError(op string, taskID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.WithMetadata(apperrors.CodeTaskNotFound, "task not found", map[string]string{"TaskID": taskID})
	}
	return storeError(op, err)
}

func storeError(op string, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeUnavailable, op, err)
}
