// Package mcp exposes the session operations as MCP tools over stdio.
package mcp

import (
	"context"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/app"
)

type Server struct {
	server     *sdk.Server
	svc        *app.Service
	log        *zap.Logger
	instanceID string
}

type Config struct {
	Name    string
	Version string
}

func NewServer(cfg Config, svc *app.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "ehrsim"
	}
	s := &Server{
		server:     sdk.NewServer(&sdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		svc:        svc,
		instanceID: uuid.NewString(),
	}
	s.log = log.With(zap.String("mcp_instance", s.instanceID))
	s.registerTools()
	return s
}

// Run serves stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.log.Info("mcp server stopped", zap.Error(err))
	return err
}
