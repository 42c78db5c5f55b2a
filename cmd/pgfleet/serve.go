package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	pgfleet "github.com/minhngo/pgfleet"
	"github.com/minhngo/pgfleet/internal/meta"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func runServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(os.Args[2:])

	ctx := context.Background()

	// 1. Load ServerConfig
	serverConfig, err := pgfleet.LoadServerConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serverConfig.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0, got %d", serverConfig.Server.Port)
	}

	// 2. Fill in missing credentials interactively when on a terminal
	promptMissingCredentials(serverConfig)

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	if serverConfig.Global.ClientLibPath != "" {
		logger.Info().
			Str("client_lib_path", serverConfig.Global.ClientLibPath).
			Msg("client library path configured (informational; no native client library is loaded)")
	}

	// 4. Create the fleet
	fleet, err := pgfleet.New(serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create fleet: %w", err)
	}
	defer fleet.Close()

	// 5. Test connectivity to the default database
	logger.Info().Str("database", fleet.Registry().DefaultName()).Msg("testing database connection")
	if err := fleet.Ping(ctx, ""); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	// 6. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("pgfleet", meta.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	pgfleet.RegisterMCPTools(mcpServer, fleet)

	// 7. Start HTTP server with optional health check
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			return fmt.Errorf("health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	logger.Info().
		Int("port", serverConfig.Server.Port).
		Int("databases", len(serverConfig.Databases)).
		Msg("starting pgfleet server")
	return streamableServer.Start(addr)
}

// promptMissingCredentials asks for user/password on stdin for profiles
// that have neither a DSN nor complete credentials. Skipped when stdin is
// not a terminal.
func promptMissingCredentials(cfg *pgfleet.ServerConfig) {
	if !isTTY(os.Stdin.Fd()) {
		return
	}
	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		if db.DSN != "" {
			continue
		}
		if db.User == "" {
			db.User = promptInput(fmt.Sprintf("Username for %q: ", db.Name))
		}
		if db.Password == "" {
			db.Password = promptPassword(fmt.Sprintf("Password for %q: ", db.Name))
		}
	}
}

func setupLogger(config pgfleet.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
