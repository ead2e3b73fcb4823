package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the tapestry-status MCP prompt.
// It instructs the AI to assemble a picture of the project's tracked state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("tapestry-status",
		mcp.WithPromptDescription(
			"Check the project's tracked state: recent sessions, open tasks "+
				"and sidequests, theme flows, and git branch state.",
		),
	)
}

// Handle processes the tapestry-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Tapestry project status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please give me a status picture of this project.\n\n" +
						"Run:\n" +
						"1. `session_recent` for the latest work sessions\n" +
						"2. `task_list` for open tasks (call it twice: status='in-progress' and status='blocked')\n" +
						"3. `git_state` for the branch and any uncommitted changes\n\n" +
						"Then:\n" +
						"- Summarize what was worked on recently and what's still open\n" +
						"- Flag blocked tasks and tasks held open by sidequests\n" +
						"- Tell me the single most useful thing to do next",
				),
			},
		},
	}, nil
}
