// Tapestry: theme-organized project memory MCP server
//
// A universal MCP server that integrates with any AI coding tool
// (Claude Code, OpenCode, Gemini CLI, Codex, Cursor, VS Code Copilot)
// to give it persistent, theme-organized memory of a project: themes,
// work sessions, tasks, and file relationship analysis.
//
// Usage:
//
//	tapestry serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	tapserver "tapestry/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("tapestry v%s\n", tapserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	s, cleanup, err := tapserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Stdio serving ends when stdin closes; on a signal, close the store
	// and flush logs before exiting.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Tapestry v%s — theme-organized project memory MCP server

Usage:
  tapestry serve     Start the MCP server (stdio transport)
  tapestry version   Print the version
  tapestry help      Show this message

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "tapestry": {
        "command": "tapestry",
        "args": ["serve"]
      }
    }
  }

State lives under <project>/.tapestry/ — run the server with the project
directory (or any subdirectory of it) as the working directory.
`, tapserver.Version)
}
