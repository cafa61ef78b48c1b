// Package grpcapi exposes shared-list access and live snapshots over gRPC.
package grpcapi

import (
	"context"
	"log"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/id"
	"github.com/louisbranch/taskflow/internal/services/identity"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/access"
	"github.com/louisbranch/taskflow/internal/services/sharedlist/app"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

// SharedLists is the shared-list behavior served over gRPC.
type SharedLists interface {
	Open(ctx context.Context, actor identity.Identity, listID string) (app.View, error)
	ListTasks(ctx context.Context, actor identity.Identity, listID string, filterExpr string) ([]sharedlist.Task, access.Decision, error)
	AddTask(ctx context.Context, actor identity.Identity, listID string, input app.TaskInput) (string, error)
	ToggleTask(ctx context.Context, actor identity.Identity, listID string, taskID string) (bool, error)
	Watch(ctx context.Context, actor identity.Identity, listID string, viewID string, observer app.Observer) (*app.Watch, error)
}

// Service implements taskflow.sharedlist.v1.SharedListService.
type Service struct {
	lists SharedLists
	newID func() (string, error)
}

var _ sharedlistv1.SharedListServiceServer = (*Service)(nil)

// NewService creates the gRPC service over lists.
func NewService(lists SharedLists) *Service {
	return &Service{lists: lists, newID: id.NewID}
}

// EvaluateAccess returns the caller's access decision and visible snapshot.
func (s *Service) EvaluateAccess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sharedlistv1.EvaluateAccessRequest
	if err := s.begin(in, &req); err != nil {
		return nil, err
	}
	listID, err := requireListID(req.ListID)
	if err != nil {
		return nil, err
	}
	view, err := s.lists.Open(ctx, actorFrom(ctx), listID)
	if err != nil {
		return nil, fail(ctx, sharedlistv1.MethodEvaluateAccess, err)
	}
	return encode(sharedlistv1.EvaluateAccessResponse{
		Access: sharedlistv1.AccessFromDomain(view.Decision),
		List:   sharedlistv1.ListFromDomain(view.List),
	})
}

// ListTasks returns the tasks of a list matching an optional filter.
func (s *Service) ListTasks(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sharedlistv1.ListTasksRequest
	if err := s.begin(in, &req); err != nil {
		return nil, err
	}
	listID, err := requireListID(req.ListID)
	if err != nil {
		return nil, err
	}
	tasks, decision, err := s.lists.ListTasks(ctx, actorFrom(ctx), listID, req.Filter)
	if err != nil {
		return nil, fail(ctx, sharedlistv1.MethodListTasks, err)
	}
	return encode(sharedlistv1.ListTasksResponse{
		Access: sharedlistv1.AccessFromDomain(decision),
		Tasks:  sharedlistv1.TasksFromDomain(tasks),
	})
}

// AddTask appends a task to a list.
func (s *Service) AddTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sharedlistv1.AddTaskRequest
	if err := s.begin(in, &req); err != nil {
		return nil, err
	}
	listID, err := requireListID(req.ListID)
	if err != nil {
		return nil, err
	}
	taskID, err := s.lists.AddTask(ctx, actorFrom(ctx), listID, app.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    sharedlist.Priority(strings.ToLower(strings.TrimSpace(req.Priority))),
		DueDate:     req.DueDate,
		Project:     req.Project,
	})
	if err != nil {
		return nil, fail(ctx, sharedlistv1.MethodAddTask, err)
	}
	return encode(sharedlistv1.AddTaskResponse{TaskID: taskID})
}

// ToggleTask flips a task's completed flag.
func (s *Service) ToggleTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sharedlistv1.ToggleTaskRequest
	if err := s.begin(in, &req); err != nil {
		return nil, err
	}
	listID, err := requireListID(req.ListID)
	if err != nil {
		return nil, err
	}
	taskID := strings.TrimSpace(req.TaskID)
	if taskID == "" {
		return nil, status.Error(codes.InvalidArgument, "task id is required")
	}
	completed, err := s.lists.ToggleTask(ctx, actorFrom(ctx), listID, taskID)
	if err != nil {
		return nil, fail(ctx, sharedlistv1.MethodToggleTask, err)
	}
	return encode(sharedlistv1.ToggleTaskResponse{Completed: completed})
}

// WatchList streams the caller's view of a list after every committed
// change. The stream ends with PermissionDenied once access is lost, and
// cleanly when the caller opens another watch with the same view id.
func (s *Service) WatchList(in *structpb.Struct, stream sharedlistv1.WatchListServer) error {
	ctx := stream.Context()
	var req sharedlistv1.WatchListRequest
	if err := s.begin(in, &req); err != nil {
		return err
	}
	listID, err := requireListID(req.ListID)
	if err != nil {
		return err
	}
	viewID := strings.TrimSpace(req.ViewID)
	if viewID == "" {
		generated, err := s.newID()
		if err != nil {
			return status.Errorf(codes.Internal, "generate view id: %v", err)
		}
		viewID = "grpc-" + generated
	}

	watchCtx, cancel := context.WithCancel(ctx)
	observer := newStreamObserver(watchCtx.Done())
	watch, err := s.lists.Watch(watchCtx, actorFrom(ctx), listID, viewID, observer)
	if err != nil {
		cancel()
		return fail(ctx, sharedlistv1.MethodWatchList, err)
	}
	defer func() {
		cancel()
		watch.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-observer.denied:
			return fail(ctx, sharedlistv1.MethodWatchList, err)
		case <-watch.Done():
			if err := watch.Err(); err != nil {
				return fail(ctx, sharedlistv1.MethodWatchList, err)
			}
			return nil
		case view := <-observer.views:
			msg, err := encode(sharedlistv1.WatchListEvent{
				Access: sharedlistv1.AccessFromDomain(view.Decision),
				List:   sharedlistv1.ListFromDomain(view.List),
			})
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (s *Service) begin(in *structpb.Struct, req any) error {
	if s == nil || s.lists == nil {
		return status.Error(codes.Internal, "shared list service is not configured")
	}
	if err := sharedlistv1.Decode(in, req); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func requireListID(listID string) (string, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return "", status.Error(codes.InvalidArgument, "list id is required")
	}
	return listID, nil
}

func actorFrom(ctx context.Context) identity.Identity {
	actor, _ := identity.FromContext(ctx)
	return actor
}

func encode(message any) (*structpb.Struct, error) {
	out, err := sharedlistv1.Encode(message)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func fail(ctx context.Context, method string, err error) error {
	log.Printf("grpcapi: %s failed code=%s err=%v", method, apperrors.CodeOf(err), err)
	return apperrors.HandleError(err, localeFrom(ctx))
}

// streamObserver hands watch callbacks to the stream goroutine. Sends give
// up once done closes so Unsubscribe never waits on a stopped stream.
type streamObserver struct {
	views  chan app.View
	denied chan error
	done   <-chan struct{}
}

func newStreamObserver(done <-chan struct{}) *streamObserver {
	return &streamObserver{
		views:  make(chan app.View),
		denied: make(chan error, 1),
		done:   done,
	}
}

func (o *streamObserver) Snapshot(view app.View) {
	select {
	case o.views <- view:
	case <-o.done:
	}
}

func (o *streamObserver) Denied(err error) {
	select {
	case o.denied <- err:
	default:
	}
}
