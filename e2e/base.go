package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"team-chat/auth"
	"team-chat/client"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type BaseChatSuite struct {
	suite.Suite
	Config Config
	tokens auth.TokenService
}

// SetupSuite loads the environment configuration, suites are skipped when no server is configured.
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" || s.Config.JwtSecret == "" {
		s.T().Skip("E2E_SERVER_URL and E2E_JWT_SECRET are required")
	}
	s.tokens = auth.NewTokenService(s.Config.JwtSecret, s.Config.JwtIssuer)
}

// Step prints a colorized header before running a named step.
func (s *BaseChatSuite) Step(name string, fn func()) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
	s.Run(name, fn)
}

// Connect dials the chat server with a freshly minted token.
func (s *BaseChatSuite) Connect(userID, username string) *client.Client {
	token, err := s.tokens.GenerateToken(userID, username, nil, time.Hour)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, slog.Default(), client.Options{ServerURL: s.Config.ServerURL, Token: token})
	s.Require().NoError(err, "Failed to connect to chat server at "+s.Config.ServerURL)
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}

// WithHealth provides a gRPC health client bound to the server health port.
func (s *BaseChatSuite) WithHealth(fn func(ctx context.Context, health healthpb.HealthClient)) {
	conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC health at "+s.Config.HealthAddr)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
