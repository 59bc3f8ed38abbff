package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/aiveilix/aiveilix/internal/app"
	"github.com/aiveilix/aiveilix/internal/models"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: AIVEILIX_CONFIG or aiveilix.toml next to the binary)")
	flag.Parse()

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	// Stdio authenticates once at startup and holds a single principal
	// for the process lifetime.
	apiKey := os.Getenv("AIVEILIX_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "AIVEILIX_API_KEY is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	principal, err := a.Bridge.Resolve(ctx, apiKey)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Authentication failed: %v\n", err)
		os.Exit(1)
	}

	a.Logger.Info().
		Str("user_id", principal.UserID).
		Str("auth_type", principal.AuthType).
		Msg("Stdio transport authenticated")

	s := server.NewMCPServer(
		models.MCPServerName,
		models.MCPServerVersion,
		server.WithToolCapabilities(true),
	)

	s.AddTool(createListBucketsTool(), handleListBuckets(a, principal))
	s.AddTool(createGetBucketInfoTool(), handleGetBucketInfo(a, principal))
	s.AddTool(createListBucketFilesTool(), handleListBucketFiles(a, principal))
	s.AddTool(createGetFileContentTool(), handleGetFileContent(a, principal))
	s.AddTool(createQueryBucketTool(), handleQueryBucket(a, principal))
	s.AddTool(createChatBucketTool(), handleChatBucket(a, principal))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Stdio server error: %v\n", err)
		os.Exit(1)
	}
}
