// Package domain translates MCP tool calls into shared-list gRPC requests.
//
// Every call acts as the account configured on the connection; the shared
// list service evaluates its access like any other requester.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/timeouts"
	"github.com/louisbranch/taskflow/internal/services/taskflow/api/grpcapi/sharedlistv1"
)

// SharedListClient is the subset of the shared-list gRPC client used by tools.
type SharedListClient interface {
	EvaluateAccess(ctx context.Context, req sharedlistv1.EvaluateAccessRequest, opts ...grpc.CallOption) (sharedlistv1.EvaluateAccessResponse, error)
	ListTasks(ctx context.Context, req sharedlistv1.ListTasksRequest, opts ...grpc.CallOption) (sharedlistv1.ListTasksResponse, error)
	AddTask(ctx context.Context, req sharedlistv1.AddTaskRequest, opts ...grpc.CallOption) (sharedlistv1.AddTaskResponse, error)
	ToggleTask(ctx context.Context, req sharedlistv1.ToggleTaskRequest, opts ...grpc.CallOption) (sharedlistv1.ToggleTaskResponse, error)
}

// TaskResult is one task as returned to MCP clients.
type TaskResult struct {
	ID          string `json:"id" jsonschema:"task identifier"`
	Title       string `json:"title" jsonschema:"task title"`
	Description string `json:"description,omitempty" jsonschema:"task description"`
	Completed   bool   `json:"completed" jsonschema:"whether the task is done"`
	Priority    string `json:"priority" jsonschema:"task priority (low, medium, high)"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"due date as YYYY-MM-DD"`
	Project     string `json:"project,omitempty" jsonschema:"project label"`
}

// SharedListGetInput represents the MCP tool input for reading a list.
type SharedListGetInput struct {
	ListID string `json:"list_id" jsonschema:"shared list identifier"`
}

// SharedListGetResult represents the MCP tool output for reading a list.
type SharedListGetResult struct {
	ListID        string       `json:"list_id" jsonschema:"shared list identifier"`
	Name          string       `json:"name" jsonschema:"list name"`
	AccessType    string       `json:"access_type" jsonschema:"private or public"`
	Access        string       `json:"access" jsonschema:"caller access level"`
	CanModify     bool         `json:"can_modify" jsonschema:"whether the caller may change tasks"`
	Preview       bool         `json:"preview" jsonschema:"whether tasks are limited to an invitation preview"`
	Collaborators []string     `json:"collaborators" jsonschema:"collaborator emails"`
	Tasks         []TaskResult `json:"tasks" jsonschema:"visible tasks"`
}

// SharedListTasksInput represents the MCP tool input for listing tasks.
type SharedListTasksInput struct {
	ListID string `json:"list_id" jsonschema:"shared list identifier"`
	Filter string `json:"filter,omitempty" jsonschema:"optional AIP-160 filter over title, completed, priority, project, due_date and created_by"`
}

// SharedListTasksResult represents the MCP tool output for listing tasks.
type SharedListTasksResult struct {
	ListID string       `json:"list_id" jsonschema:"shared list identifier"`
	Tasks  []TaskResult `json:"tasks" jsonschema:"matching tasks"`
}

// SharedListTaskAddInput represents the MCP tool input for adding a task.
type SharedListTaskAddInput struct {
	ListID      string `json:"list_id" jsonschema:"shared list identifier"`
	Title       string `json:"title" jsonschema:"task title"`
	Description string `json:"description,omitempty" jsonschema:"optional description"`
	Priority    string `json:"priority,omitempty" jsonschema:"low, medium or high (default medium)"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"optional due date as YYYY-MM-DD"`
	Project     string `json:"project,omitempty" jsonschema:"optional project label"`
}

// SharedListTaskAddResult represents the MCP tool output for adding a task.
type SharedListTaskAddResult struct {
	ListID string `json:"list_id" jsonschema:"shared list identifier"`
	TaskID string `json:"task_id" jsonschema:"new task identifier"`
}

// SharedListTaskToggleInput represents the MCP tool input for toggling a task.
type SharedListTaskToggleInput struct {
	ListID string `json:"list_id" jsonschema:"shared list identifier"`
	TaskID string `json:"task_id" jsonschema:"task identifier"`
}

// SharedListTaskToggleResult represents the MCP tool output for toggling a task.
type SharedListTaskToggleResult struct {
	ListID    string `json:"list_id" jsonschema:"shared list identifier"`
	TaskID    string `json:"task_id" jsonschema:"task identifier"`
	Completed bool   `json:"completed" jsonschema:"completed flag after the toggle"`
}

func SharedListGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "shared_list_get",
		Description: "Returns a shared task list and its visible tasks",
	}
}

func SharedListTasksTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "shared_list_tasks",
		Description: "Lists tasks of a shared list, optionally filtered",
	}
}

func SharedListTaskAddTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "shared_list_task_add",
		Description: "Adds a task to a shared list",
	}
}

func SharedListTaskToggleTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "shared_list_task_toggle",
		Description: "Marks a shared-list task done or not done",
	}
}

// SharedListGetHandler reads a list. Denied access is a tool error.
func SharedListGetHandler(client SharedListClient) mcp.ToolHandlerFor[SharedListGetInput, SharedListGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SharedListGetInput) (*mcp.CallToolResult, SharedListGetResult, error) {
		listID, err := requireValue("list_id", input.ListID)
		if err != nil {
			return nil, SharedListGetResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCCall)
		defer cancel()

		response, err := client.EvaluateAccess(callCtx, sharedlistv1.EvaluateAccessRequest{ListID: listID})
		if err != nil {
			return nil, SharedListGetResult{}, callError("shared list get", err)
		}
		if response.List == nil {
			return nil, SharedListGetResult{}, errors.New("you do not have access to this list")
		}
		return nil, SharedListGetResult{
			ListID:        response.List.ID,
			Name:          response.List.Name,
			AccessType:    response.List.AccessType,
			Access:        response.Access.Level,
			CanModify:     response.Access.CanModify,
			Preview:       response.Access.PreviewLimit > 0,
			Collaborators: append([]string{}, response.List.Collaborators...),
			Tasks:         taskResults(response.List.Tasks),
		}, nil
	}
}

// SharedListTasksHandler lists tasks of a list.
func SharedListTasksHandler(client SharedListClient) mcp.ToolHandlerFor[SharedListTasksInput, SharedListTasksResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SharedListTasksInput) (*mcp.CallToolResult, SharedListTasksResult, error) {
		listID, err := requireValue("list_id", input.ListID)
		if err != nil {
			return nil, SharedListTasksResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCCall)
		defer cancel()

		response, err := client.ListTasks(callCtx, sharedlistv1.ListTasksRequest{ListID: listID, Filter: strings.TrimSpace(input.Filter)})
		if err != nil {
			return nil, SharedListTasksResult{}, callError("shared list tasks", err)
		}
		return nil, SharedListTasksResult{ListID: listID, Tasks: taskResults(response.Tasks)}, nil
	}
}

// SharedListTaskAddHandler adds a task.
func SharedListTaskAddHandler(client SharedListClient) mcp.ToolHandlerFor[SharedListTaskAddInput, SharedListTaskAddResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SharedListTaskAddInput) (*mcp.CallToolResult, SharedListTaskAddResult, error) {
		listID, err := requireValue("list_id", input.ListID)
		if err != nil {
			return nil, SharedListTaskAddResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCCall)
		defer cancel()

		response, err := client.AddTask(callCtx, sharedlistv1.AddTaskRequest{
			ListID:      listID,
			Title:       input.Title,
			Description: input.Description,
			Priority:    input.Priority,
			DueDate:     input.DueDate,
			Project:     input.Project,
		})
		if err != nil {
			return nil, SharedListTaskAddResult{}, callError("shared list task add", err)
		}
		return nil, SharedListTaskAddResult{ListID: listID, TaskID: response.TaskID}, nil
	}
}

// SharedListTaskToggleHandler toggles a task.
func SharedListTaskToggleHandler(client SharedListClient) mcp.ToolHandlerFor[SharedListTaskToggleInput, SharedListTaskToggleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SharedListTaskToggleInput) (*mcp.CallToolResult, SharedListTaskToggleResult, error) {
		listID, err := requireValue("list_id", input.ListID)
		if err != nil {
			return nil, SharedListTaskToggleResult{}, err
		}
		taskID, err := requireValue("task_id", input.TaskID)
		if err != nil {
			return nil, SharedListTaskToggleResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCCall)
		defer cancel()

		response, err := client.ToggleTask(callCtx, sharedlistv1.ToggleTaskRequest{ListID: listID, TaskID: taskID})
		if err != nil {
			return nil, SharedListTaskToggleResult{}, callError("shared list task toggle", err)
		}
		return nil, SharedListTaskToggleResult{ListID: listID, TaskID: taskID, Completed: response.Completed}, nil
	}
}

func requireValue(name string, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return value, nil
}

// callError keeps the user-facing message of a gRPC failure.
func callError(operation string, err error) error {
	return fmt.Errorf("%s failed: %s", operation, apperrors.LocalizedMessage(err))
}

func taskResults(tasks []sharedlistv1.Task) []TaskResult {
	out := make([]TaskResult, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, TaskResult{
			ID:          task.ID,
			Title:       task.Title,
			Description: task.Description,
			Completed:   task.Completed,
			Priority:    task.Priority,
			DueDate:     task.DueDate,
			Project:     task.Project,
		})
	}
	return out
}
