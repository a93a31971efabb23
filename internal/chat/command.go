// Package chat executes structured task commands produced by an external
// natural-language parser. The parser itself is out of process; this
// package only defines the command contract and runs commands against the
// task lifecycle engine.
package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/tasks"
)

// Action is the operation a chat command requests
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionComplete   Action = "complete"
	ActionDelete     Action = "delete"
	ActionList       Action = "list"
	ActionSearch     Action = "search"
	ActionAddTags    Action = "add_tags"
	ActionRemoveTags Action = "remove_tags"
)

// Command is the structured operation an external parser derives from a
// chat message. Exactly the argument block matching Action must be set.
type Command struct {
	Action Action     `json:"action"`
	TaskID *uuid.UUID `json:"task_id,omitempty"`

	Create *tasks.CreateInput `json:"create,omitempty"`
	Update *tasks.UpdateInput `json:"update,omitempty"`
	Tags   []string           `json:"tags,omitempty"`
	Query  string             `json:"query,omitempty"`
}

// Response is what the chat front end returns to the client
type Response struct {
	Response string         `json:"response"`
	Action   Action         `json:"action"`
	TaskID   *uuid.UUID     `json:"task_id,omitempty"`
	Tasks    []*models.Task `json:"tasks,omitempty"`
	Total    int            `json:"total,omitempty"`
}

// Parser converts a raw chat message into a Command. Implementations live
// outside this repo (NL or LLM based); the interface is the integration
// point.
type Parser interface {
	Parse(ctx context.Context, userID, message string) (*Command, error)
}
