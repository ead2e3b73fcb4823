// Package prompts implements MCP prompt handlers for tapestry workflows.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// KickoffPrompt handles the tapestry-kickoff MCP prompt.
// It guides the AI through starting a tracked work session: open a
// session, load the right theme context, check git state and open work.
type KickoffPrompt struct{}

// NewKickoffPrompt creates a KickoffPrompt.
func NewKickoffPrompt() *KickoffPrompt {
	return &KickoffPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *KickoffPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("tapestry-kickoff",
		mcp.WithPromptDescription(
			"Start a tracked work session. Opens a session, loads the theme "+
				"you're working on, and surfaces open tasks and git state so "+
				"you can pick up where you left off.",
		),
		mcp.WithArgument("theme",
			mcp.ArgumentDescription("Theme to load context for (omit to pick from the list)"),
		),
	)
}

// Handle processes the tapestry-kickoff prompt request.
func (p *KickoffPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	theme := ""
	if args := req.Params.Arguments; args != nil {
		theme = args["theme"]
	}

	loadStep := "2. Run `theme_list` and ask me which theme I'm working on, then run `ctx_load` with it and my session_id\n"
	if theme != "" {
		loadStep = fmt.Sprintf("2. Run `ctx_load` with theme='%s' and my session_id\n", theme)
	}

	return &mcp.GetPromptResult{
		Description: "Start a tapestry work session",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"I want to start a tracked work session on this project.\n\n" +
						"Please:\n" +
						"1. Run `session_start` and keep the session_id for later calls\n" +
						loadStep +
						"3. Run `git_state` so we both know the branch and any uncommitted changes\n" +
						"4. Run `task_list` with status='in-progress' and show me what's already open\n" +
						"5. Summarize the loaded context and ask me what to work on; create a task " +
						"with `task_create` once we agree\n\n" +
						"If the context report says the mode was escalated, tell me why before we start.",
				),
			},
		},
	}, nil
}
