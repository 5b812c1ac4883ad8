package chatbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

func TestReply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		topic string
	}{
		{"Hello there", "greeting"},
		{"How long does DELIVERY take?", "shipping"},
		{"can I get a refund", "returns"},
		{"what size should I buy", "sizing"},
		{"Do you take PayPal?", "payment"},
		{"are you open on sunday", "hours"},
		{"I want to talk to a human", "contact"},
		{"quantum chromodynamics", ""},
	}
	for _, tc := range cases {
		_, topic := Reply(tc.in)
		require.Equal(t, tc.topic, topic, "input %q", tc.in)
	}

	// Keywords match whole words only.
	_, topic := Reply("shipment of this")
	require.Empty(t, topic)
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	bot := New()
	require.Len(t, bot.Transcript(), 1)

	require.Empty(t, bot.Ask("   "))
	reply := bot.Ask("returns?")
	require.Contains(t, reply, "30 days")

	lines := bot.Transcript()
	require.Len(t, lines, 3)
	require.Equal(t, SenderUser, lines[1].Sender)
	require.Equal(t, SenderBot, lines[2].Sender)

	bot.Reset()
	require.Len(t, bot.Transcript(), 1)
}

type captureSubmitter struct {
	got shopsdk.ContactRequest
}

func (c *captureSubmitter) Submit(_ context.Context, in shopsdk.ContactRequest) (*shopsdk.ContactMessage, error) {
	c.got = in
	return &shopsdk.ContactMessage{ID: "m1", Source: in.Source}, nil
}

func TestHandoff(t *testing.T) {
	t.Parallel()

	bot := New()
	bot.now = func() time.Time { return time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC) }
	sub := &captureSubmitter{}

	_, err := bot.Handoff(context.Background(), sub, "Ana", "ana@example.com")
	require.ErrorIs(t, err, ErrNothingToHandOff)

	bot.Ask("Where is my order? It was supposed to arrive on Monday and tracking shows nothing at all")
	msg, err := bot.Handoff(context.Background(), sub, "Ana", "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)

	require.Equal(t, "chatbot", sub.got.Source)
	require.Equal(t, "ana@example.com", sub.got.Email)
	require.LessOrEqual(t, len([]rune(sub.got.Subject)), len("Chat: ")+60)
	require.Contains(t, sub.got.Message, "[09:30] user: Where is my order?")
}
