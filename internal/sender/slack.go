package sender

import (
	"context"
	"fmt"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/pkg/httpclient"
)

// SlackSender posts to a Slack incoming webhook.
type SlackSender struct {
	client *httpclient.Client
}

func NewSlackSender(client *httpclient.Client) *SlackSender {
	return &SlackSender{client: client}
}

func (s *SlackSender) Name() domain.Channel { return domain.ChannelSlack }

type slackPayload struct {
	Text string `json:"text"`
}

func (s *SlackSender) Send(ctx context.Context, cfg *domain.ChannelConfig, _ string, content Content) (Result, error) {
	return post(ctx, s.client, cfg, slackPayload{
		Text: fmt.Sprintf("*%s*\n%s", content.Title, content.Message),
	})
}
