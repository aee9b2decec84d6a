package e2e

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"team-chat/client"
	"team-chat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testTeamChatSuite struct {
	BaseChatSuite
}

func TestTeamChatSuite(t *testing.T) {
	suite.Run(t, &testTeamChatSuite{})
}

func (s *testTeamChatSuite) TestTwoMembersChat() {
	// Random teams keep reruns against the same server independent
	team := 100000 + rand.IntN(900000)
	other := team + 1
	text := "hello " + uuid.NewString()

	s.Step("Step 0: Server reports serving", func() {
		s.WithHealth(func(ctx context.Context, health healthpb.HealthClient) {
			resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
			s.Require().NoError(err)
			s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
		})
	})

	x := s.Connect("e2e-x", "x")
	y := s.Connect("e2e-y", "y")
	outsider := s.Connect("e2e-z", "z")

	s.Step("Step 1: Members join their teams", func() {
		s.Require().NoError(x.JoinTeam(team))
		s.Require().NoError(y.JoinTeam(team))
		s.Require().NoError(outsider.JoinTeam(other))
		for _, c := range []*client.Client{x, y, outsider} {
			select {
			case <-c.Joined():
			case <-time.After(5 * time.Second):
				s.FailNow("join not acknowledged")
			}
		}
	})

	var sent domain.ChatMessage
	s.Step("Step 2: Both members receive the message", func() {
		s.Require().NoError(x.Send(team, text))
		sent = s.receive(x)
		s.Require().Equal(sent, s.receive(y))
		s.Require().Equal("x", sent.Username)
		s.Require().Equal(text, sent.Text)
	})

	s.Step("Step 3: Other teams stay silent", func() {
		select {
		case m := <-outsider.Messages():
			s.FailNow(fmt.Sprintf("outsider received %q", m.Text))
		case <-time.After(500 * time.Millisecond):
		}
	})

	s.Step("Step 4: History starts with the message", func() {
		s.Require().Eventually(func() bool {
			page, _, err := y.History(context.Background(), team, 0, nil)
			return err == nil && len(page) > 0 && page[0].ID == sent.ID
		}, 5*time.Second, 100*time.Millisecond)
	})
}

func (s *testTeamChatSuite) receive(c *client.Client) domain.ChatMessage {
	select {
	case m, ok := <-c.Messages():
		s.Require().True(ok, "connection closed")
		return m
	case <-time.After(5 * time.Second):
		s.FailNow("no message received")
		return domain.ChatMessage{}
	}
}
