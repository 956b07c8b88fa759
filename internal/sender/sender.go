// Package sender delivers rendered notifications over concrete channels.
package sender

import (
	"context"
	"fmt"

	"github.com/heraldhq/herald/internal/domain"
)

// Content is the rendered payload handed to a channel sender.
type Content struct {
	Title    string
	Message  string
	Metadata map[string]any
}

// Result reports how a send attempt concluded. PermanentFailure marks
// errors that retrying cannot fix, for example a rejected recipient.
type Result struct {
	DeliveredImmediately bool
	PermanentFailure     bool
	ProviderMessage      string
}

// Sender pushes content to a single channel's provider.
type Sender interface {
	Name() domain.Channel
	Send(ctx context.Context, cfg *domain.ChannelConfig, recipient string, content Content) (Result, error)
}

// Registry resolves channels to their configured senders.
type Registry struct {
	senders map[domain.Channel]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	m := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		m[s.Name()] = s
	}
	return &Registry{senders: m}
}

func (r *Registry) Lookup(ch domain.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("sender: no sender registered for channel %q", ch)
	}
	return s, nil
}
