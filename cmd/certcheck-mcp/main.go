package main

import (
	"os"

	"cert-checker/internal/conf"
	"cert-checker/internal/mcptools"
	"cert-checker/internal/service"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := conf.LoadConfig()
	if err != nil {
		logrus.Fatalf("Config error: %v", err)
	}
	// stdout carries the MCP protocol
	conf.SetupLogging(cfg.Log, os.Stderr)

	s := server.NewMCPServer(
		"cert-checker",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	checker := service.NewCheckerService(service.NewProber(), cfg.Probe.MaxConcurrency)
	mcptools.RegisterTools(s, checker, service.NewInspectorService())

	if err := server.ServeStdio(s); err != nil {
		logrus.Fatalf("server error: %v", err)
	}
}
