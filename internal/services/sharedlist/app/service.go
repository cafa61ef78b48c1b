// Package app implements shared-list operations on top of the realtime store
// and the access evaluator.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/id"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/filter"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/realtime"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/storage"
)

const tracerName = "github.com/louisbranch/taskflow/internal/services/sharedlist/app"

// View is what a requester may see of one list.
type View struct {
	// List is nil without access and preview-trimmed for pending invitations.
	List     *sharedlist.List
	Decision access.Decision
}

// TaskInput describes a new task.
type TaskInput struct {
	Title       string
	Description string
	Priority    sharedlist.Priority
	DueDate     string
	Project     string
}

// TaskUpdate is a partial task change. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *sharedlist.Priority
	DueDate     *string
	Project     *string
}

// Service runs shared-list operations for identified requesters.
type Service struct {
	store  storage.Store
	broker *realtime.Broker
	now    func() time.Time
	newID  func() (string, error)
	tracer trace.Tracer
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

// NewService builds a shared-list service.
func NewService(store storage.Store, broker *realtime.Broker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("shared list store is required")
	}
	if broker == nil {
		return nil, errors.New("change broker is required")
	}
	s := &Service{
		store:  store,
		broker: broker,
		now:    time.Now,
		newID:  id.NewID,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateList creates a private list with actor as its first collaborator.
func (s *Service) CreateList(ctx context.Context, actor identity.Identity, name string) (list sharedlist.List, err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.CreateList", "")
	defer func() { endSpan(span, err) }()

	email, err := requireMember(actor)
	if err != nil {
		return sharedlist.List{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return sharedlist.List{}, apperrors.New(apperrors.CodeListNameEmpty, "list name is required")
	}
	listID, err := s.newID()
	if err != nil {
		return sharedlist.List{}, fmt.Errorf("generate list id: %w", err)
	}
	now := s.now().UTC()
	list = sharedlist.List{
		ID:            listID,
		Name:          name,
		CreatedBy:     email,
		Collaborators: []string{email},
		AccessType:    sharedlist.AccessPrivate,
		CreatedAt:     now,
	}
	if err := s.store.SetList(ctx, list); err != nil {
		return sharedlist.List{}, storeError("create list", err)
	}
	created, err := s.store.GetList(ctx, listID)
	if err != nil {
		return sharedlist.List{}, storeError("load created list", err)
	}
	return created, nil
}

// Open evaluates actor's access to listID and returns the permitted view. A
// missing list or denied access is reported through the decision, not as an
// error.
func (s *Service) Open(ctx context.Context, actor identity.Identity, listID string) (view View, err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.Open", listID)
	defer func() { endSpan(span, err) }()

	email, err := requireMember(actor)
	if err != nil {
		return View{}, err
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return View{}, err
	}
	decision := access.Evaluate(list, email)
	span.SetAttributes(attribute.String("access.level", string(decision.Level)))
	return View{List: decision.Visible(list), Decision: decision}, nil
}

// GetList returns the permitted view of listID or an access error.
func (s *Service) GetList(ctx context.Context, actor identity.Identity, listID string) (View, error) {
	view, err := s.Open(ctx, actor, listID)
	if err != nil {
		return View{}, err
	}
	if !view.Decision.CanView() {
		return View{}, accessDenied(listID)
	}
	return view, nil
}

// ListTasks returns the tasks of listID matching an AIP-160 filter, capped to
// the preview for pending invitations.
func (s *Service) ListTasks(ctx context.Context, actor identity.Identity, listID string, filterExpr string) (tasks []sharedlist.Task, decision access.Decision, err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.ListTasks", listID)
	defer func() { endSpan(span, err) }()

	email, err := requireMember(actor)
	if err != nil {
		return nil, access.Decision{}, err
	}
	cond, err := filter.ParseTaskFilter(filterExpr)
	if err != nil {
		return nil, access.Decision{}, apperrors.Wrap(apperrors.CodeFilterInvalid, "invalid task filter", err)
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return nil, access.Decision{}, err
	}
	decision = access.Evaluate(list, email)
	if !decision.CanView() {
		return nil, decision, accessDenied(listID)
	}
	if decision.PreviewLimit > 0 {
		// Previews only ever expose the first tasks of the list, filtered or not.
		preview := decision.Visible(list).Tasks
		if cond.Empty() {
			return preview, decision, nil
		}
		matched, err := s.store.QueryTasks(ctx, listID, cond)
		if err != nil {
			return nil, decision, storeError("query tasks", err)
		}
		return intersectTasks(preview, matched), decision, nil
	}
	tasks, err = s.store.QueryTasks(ctx, listID, cond)
	if err != nil {
		return nil, decision, storeError("query tasks", err)
	}
	return tasks, decision, nil
}

// AddTask appends a task to listID and returns its generated id.
func (s *Service) AddTask(ctx context.Context, actor identity.Identity, listID string, input TaskInput) (taskID string, err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.AddTask", listID)
	defer func() { endSpan(span, err) }()

	task, err := validateTaskInput(input)
	if err != nil {
		return "", err
	}
	email, _, err := s.requireModify(ctx, actor, listID)
	if err != nil {
		return "", err
	}
	task.CreatedBy = email
	task.UpdatedBy = email
	task.CreatedAt = s.now().UTC()
	taskID, err = s.store.PushTask(ctx, listID, task)
	if err != nil {
		return "", storeError("add task", err)
	}
	span.SetAttributes(attribute.String("task.id", taskID))
	return taskID, nil
}

// UpdateTask merges update into one task of listID.
func (s *Service) UpdateTask(ctx context.Context, actor identity.Identity, listID string, taskID string, update TaskUpdate) (err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.UpdateTask", listID)
	defer func() { endSpan(span, err) }()

	patch, err := validateTaskUpdate(update)
	if err != nil {
		return err
	}
	email, _, err := s.requireModify(ctx, actor, listID)
	if err != nil {
		return err
	}
	patch.UpdatedAt = s.now().UTC()
	patch.UpdatedBy = email
	if err := s.store.UpdateTask(ctx, listID, taskID, patch); err != nil {
		return taskStoreError("update task", taskID, err)
	}
	return nil
}

// DeleteTask removes one task of listID.
func (s *Service) DeleteTask(ctx context.Context, actor identity.Identity, listID string, taskID string) (err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.DeleteTask", listID)
	defer func() { endSpan(span, err) }()

	if _, _, err := s.requireModify(ctx, actor, listID); err != nil {
		return err
	}
	if err := s.store.RemoveTask(ctx, listID, taskID); err != nil {
		return taskStoreError("delete task", taskID, err)
	}
	return nil
}

// ToggleTask flips the completed flag of one task and returns the new value.
func (s *Service) ToggleTask(ctx context.Context, actor identity.Identity, listID string, taskID string) (completed bool, err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.ToggleTask", listID)
	defer func() { endSpan(span, err) }()

	email, list, err := s.requireModify(ctx, actor, listID)
	if err != nil {
		return false, err
	}
	task, ok := list.Task(strings.TrimSpace(taskID))
	if !ok {
		return false, taskNotFound(taskID)
	}
	completed, err = s.store.ToggleTask(ctx, listID, task.ID, s.now().UTC(), email)
	if err != nil {
		return false, taskStoreError("toggle task", taskID, err)
	}
	return completed, nil
}

// SetAccessType switches a list between private and public. Only
// collaborators may change it.
func (s *Service) SetAccessType(ctx context.Context, actor identity.Identity, listID string, accessType sharedlist.AccessType) (err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.SetAccessType", listID)
	defer func() { endSpan(span, err) }()

	if !accessType.Valid() {
		return apperrors.WithMetadata(apperrors.CodeListInvalidAccessType, "invalid access type", map[string]string{"AccessType": string(accessType)})
	}
	if _, err := s.requireCollaborator(ctx, actor, listID); err != nil {
		return err
	}
	if err := s.store.UpdateList(ctx, listID, storage.ListPatch{AccessType: &accessType, UpdatedAt: s.now().UTC()}); err != nil {
		return storeError("set access type", err)
	}
	return nil
}

// Invite adds email to the pending invitations of listID. Inviting an
// existing collaborator or pending email is a no-op.
func (s *Service) Invite(ctx context.Context, actor identity.Identity, listID string, email string) (err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.Invite", listID)
	defer func() { endSpan(span, err) }()

	invitee, err := identity.ValidateEmail(email)
	if err != nil {
		return apperrors.WithMetadata(apperrors.CodeInvitationEmailInvalid, "invitation email is invalid", map[string]string{"Email": email})
	}
	list, err := s.requireCollaborator(ctx, actor, listID)
	if err != nil {
		return err
	}
	if list.HasCollaborator(invitee) || list.HasPendingInvitation(invitee) {
		return nil
	}
	if err := s.store.UpdateList(ctx, listID, storage.ListPatch{AddInvitations: []string{invitee}, UpdatedAt: s.now().UTC()}); err != nil {
		return storeError("invite", err)
	}
	return nil
}

// AcceptInvitation makes the invited actor a collaborator. Accepting again
// after joining is a no-op.
func (s *Service) AcceptInvitation(ctx context.Context, actor identity.Identity, listID string) (decision access.Decision, err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.AcceptInvitation", listID)
	defer func() { endSpan(span, err) }()

	email, err := requireMember(actor)
	if err != nil {
		return access.Decision{}, err
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return access.Decision{}, err
	}
	switch {
	case list.HasCollaborator(email) && !list.HasPendingInvitation(email):
		return access.Evaluate(list, email), nil
	case !list.HasCollaborator(email) && !list.HasPendingInvitation(email):
		return access.Decision{}, invitationNotFound(listID)
	}
	if err := s.store.UpdateList(ctx, listID, storage.ListPatch{
		AddCollaborators:  []string{email},
		RemoveInvitations: []string{email},
		UpdatedAt:         s.now().UTC(),
	}); err != nil {
		return access.Decision{}, storeError("accept invitation", err)
	}
	updated, err := s.loadList(ctx, listID)
	if err != nil {
		return access.Decision{}, err
	}
	return access.Evaluate(updated, email), nil
}

// RejectInvitation drops the actor's pending invitation. Collaborators are
// not changed.
func (s *Service) RejectInvitation(ctx context.Context, actor identity.Identity, listID string) (err error) {
	ctx, span := s.startSpan(ctx, "sharedlist.RejectInvitation", listID)
	defer func() { endSpan(span, err) }()

	email, err := requireMember(actor)
	if err != nil {
		return err
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return err
	}
	if !list.HasPendingInvitation(email) {
		return invitationNotFound(listID)
	}
	if err := s.store.UpdateList(ctx, listID, storage.ListPatch{RemoveInvitations: []string{email}, UpdatedAt: s.now().UTC()}); err != nil {
		return storeError("reject invitation", err)
	}
	return nil
}

// loadList reads listID, returning nil for a missing list.
func (s *Service) loadList(ctx context.Context, listID string) (*sharedlist.List, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return nil, nil
	}
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, storeError("load list", err)
	}
	return &list, nil
}

func (s *Service) requireModify(ctx context.Context, actor identity.Identity, listID string) (string, *sharedlist.List, error) {
	email, err := requireMember(actor)
	if err != nil {
		return "", nil, err
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return "", nil, err
	}
	decision := access.Evaluate(list, email)
	if !decision.CanModify {
		return "", nil, apperrors.WithMetadata(
			apperrors.CodeListPermissionDenied,
			"permission denied for shared list",
			map[string]string{"ListID": listID, "Level": string(decision.Level)},
		)
	}
	return email, list, nil
}

func (s *Service) requireCollaborator(ctx context.Context, actor identity.Identity, listID string) (*sharedlist.List, error) {
	email, err := requireMember(actor)
	if err != nil {
		return nil, err
	}
	list, err := s.loadList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, accessDenied(listID)
	}
	if !list.HasCollaborator(email) {
		return nil, apperrors.WithMetadata(apperrors.CodeListNotCollaborator, "only collaborators may do this", map[string]string{"ListID": listID})
	}
	return list, nil
}

// requireMember rejects anonymous and guest identities and returns the
// normalized email.
func requireMember(actor identity.Identity) (string, error) {
	if actor.IsZero() {
		return "", apperrors.New(apperrors.CodeAuthSessionInvalid, "sign in required")
	}
	if actor.IsGuest() {
		return "", apperrors.New(apperrors.CodeGuestNotAllowed, "guests cannot use shared lists")
	}
	email := sharedlist.NormalizeEmail(actor.Email)
	if email == "" {
		return "", apperrors.New(apperrors.CodeGuestNotAllowed, "an email is required for shared lists")
	}
	return email, nil
}

func validateTaskInput(input TaskInput) (sharedlist.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return sharedlist.Task{}, apperrors.New(apperrors.CodeTaskTitleEmpty, "task title is required")
	}
	priority := input.Priority
	if priority == "" {
		priority = sharedlist.PriorityMedium
	}
	if !priority.Valid() {
		return sharedlist.Task{}, apperrors.WithMetadata(apperrors.CodeTaskInvalidPriority, "invalid priority", map[string]string{"Priority": string(priority)})
	}
	if err := validateDueDate(input.DueDate); err != nil {
		return sharedlist.Task{}, err
	}
	return sharedlist.Task{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Priority:    priority,
		DueDate:     strings.TrimSpace(input.DueDate),
		Project:     strings.TrimSpace(input.Project),
	}, nil
}

func validateTaskUpdate(update TaskUpdate) (storage.TaskPatch, error) {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return storage.TaskPatch{}, apperrors.New(apperrors.CodeTaskTitleEmpty, "task title is required")
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return storage.TaskPatch{}, apperrors.WithMetadata(apperrors.CodeTaskInvalidPriority, "invalid priority", map[string]string{"Priority": string(*update.Priority)})
	}
	if update.DueDate != nil {
		if err := validateDueDate(*update.DueDate); err != nil {
			return storage.TaskPatch{}, err
		}
	}
	return storage.TaskPatch{
		Title:       update.Title,
		Description: update.Description,
		Completed:   update.Completed,
		Priority:    update.Priority,
		DueDate:     update.DueDate,
		Project:     update.Project,
	}, nil
}

// validateDueDate accepts an empty value or a YYYY-MM-DD calendar date.
func validateDueDate(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		return apperrors.WithMetadata(apperrors.CodeTaskInvalidDueDate, "due date must be YYYY-MM-DD", map[string]string{"DueDate": value})
	}
	return nil
}

func intersectTasks(preview []sharedlist.Task, matched []sharedlist.Task) []sharedlist.Task {
	keep := make(map[string]struct{}, len(matched))
	for _, task := range matched {
		keep[task.ID] = struct{}{}
	}
	out := make([]sharedlist.Task, 0, len(preview))
	for _, task := range preview {
		if _, ok := keep[task.ID]; ok {
			out = append(out, task)
		}
	}
	return out
}

func accessDenied(listID string) error {
	return apperrors.WithMetadata(apperrors.CodeListAccessDenied, "no access to shared list", map[string]string{"ListID": listID})
}

func invitationNotFound(listID string) error {
	return apperrors.WithMetadata(apperrors.CodeInvitationNotFound, "no pending invitation for this email", map[string]string{"ListID": listID})
}

func taskNotFound(taskID string) error {
	return apperrors.WithMetadata(apperrors.CodeTaskNotFound, "task not found", map[string]string{"TaskID": taskID})
}

func taskStoreError(op string, taskID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return taskNotFound(taskID)
	}
	return storeError(op, err)
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeUnavailable, op, err)
}

func (s *Service) startSpan(ctx context.Context, name string, listID string) (context.Context, trace.Span) {
	if listID == "" {
		return s.tracer.Start(ctx, name)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("list.id", listID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(apperrors.CodeOf(err)))
	}
	span.End()
}
