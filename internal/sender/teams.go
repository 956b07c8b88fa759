package sender

import (
	"context"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/pkg/httpclient"
)

// TeamsSender posts a MessageCard to a Microsoft Teams incoming webhook.
type TeamsSender struct {
	client *httpclient.Client
}

func NewTeamsSender(client *httpclient.Client) *TeamsSender {
	return &TeamsSender{client: client}
}

func (s *TeamsSender) Name() domain.Channel { return domain.ChannelTeams }

type teamsPayload struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	ThemeColor string `json:"themeColor"`
}

func (s *TeamsSender) Send(ctx context.Context, cfg *domain.ChannelConfig, _ string, content Content) (Result, error) {
	return post(ctx, s.client, cfg, teamsPayload{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    content.Title,
		Title:      content.Title,
		Text:       content.Message,
		ThemeColor: "0076D7",
	})
}
