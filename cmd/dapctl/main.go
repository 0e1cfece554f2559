// Command dapctl exposes a language-neutral debugging control plane as an
// MCP tool server, driving whatever DAP-compliant adapter the active
// config names for the program being debugged.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/vajrock/dapctl/internal/backend"
	"github.com/vajrock/dapctl/internal/config"
)

func main() {
	transportMode := flag.String("transport", "stdio", "transport mode: stdio or sse")
	addr := flag.String("addr", ":8080", "listen address for sse mode (host:port)")
	configPath := flag.String("config", "", "path to debugmcp.config.json (default: searched upward from the workspace folder)")
	workspaceFolder := flag.String("workspace", "", "workspace folder substituted for ${workspaceFolder} in config (default: current directory)")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	workspace := *workspaceFolder
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.WithError(err).Fatal("dapctl: failed to resolve working directory")
		}
		workspace = wd
	}

	resolvedConfigPath := *configPath
	if resolvedConfigPath == "" {
		found, err := config.FindConfig(workspace)
		if err != nil {
			log.WithError(err).Fatal("dapctl: no debugmcp.config.json found; pass -config explicitly")
		}
		resolvedConfigPath = found
	}

	cfg, err := config.Load(resolvedConfigPath, workspace)
	if err != nil {
		log.WithError(err).Fatalf("dapctl: failed to load config %s", resolvedConfigPath)
	}

	b := backend.New(log)
	defer b.Dispose()

	srv := newToolServer(b, cfg, workspace, log)

	implementation := mcp.Implementation{
		Name:    "dapctl",
		Version: "v1.0.0",
	}
	server := mcp.NewServer(&implementation, nil)
	srv.registerTools(server)

	switch *transportMode {
	case "stdio":
		if err := server.Run(context.Background(), mcp.NewStdioTransport()); err != nil {
			log.WithError(err).Fatal("dapctl: server terminated with error")
		}
	case "sse":
		getServer := func(_ *http.Request) *mcp.Server { return server }
		sseHandler := mcp.NewSSEHandler(getServer)
		log.Infof("dapctl: listening on %s", *addr)
		if err := http.ListenAndServe(*addr, sseHandler); err != nil {
			log.WithError(err).Fatal("dapctl: server terminated with error")
		}
	default:
		log.Fatalf("dapctl: unknown transport mode %q (expected 'sse' or 'stdio')", *transportMode)
	}
}
