// Package chatbot is the storefront's scripted shopping assistant. It
// answers common questions from canned replies and can hand a
// conversation over to staff as a contact message.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// Sender says who wrote a transcript line.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one line of the transcript.
type Message struct {
	Sender Sender
	Text   string
	At     time.Time
}

// Greeting opens every conversation.
const Greeting = "Hi! I'm the Atelier assistant. Ask me about shipping, returns, sizing, payment or how to reach us."

const defaultReply = "I'm not sure about that one. Type \"contact\" and I can pass your question to our team."

// topic is a canned reply and the words that trigger it.
type topic struct {
	name     string
	keywords []string
	reply    string
}

// topics are matched in order; the first hit wins.
var topics = []topic{
	{
		name:     "greeting",
		keywords: []string{"hello", "hi", "hey", "good morning", "good evening"},
		reply:    "Hello! How can I help you with your shopping today?",
	},
	{
		name:     "shipping",
		keywords: []string{"shipping", "delivery", "deliver", "ship", "track", "tracking"},
		reply:    "We ship within 1-2 business days. Standard delivery takes 3-5 days and is free on orders over $100.",
	},
	{
		name:     "returns",
		keywords: []string{"return", "returns", "refund", "exchange"},
		reply:    "You can return unworn items within 30 days for a full refund or an exchange.",
	},
	{
		name:     "sizing",
		keywords: []string{"size", "sizes", "sizing", "fit", "measurements"},
		reply:    "Each product page lists its sizes. If you're between sizes we recommend sizing up.",
	},
	{
		name:     "payment",
		keywords: []string{"pay", "payment", "card", "paypal", "invoice"},
		reply:    "We accept all major credit cards and PayPal. Payments are processed securely.",
	},
	{
		name:     "hours",
		keywords: []string{"hours", "open", "opening", "closed", "when"},
		reply:    "Our team is available Monday to Friday, 9am to 6pm.",
	},
	{
		name:     "contact",
		keywords: []string{"contact", "human", "agent", "email", "phone", "call", "staff"},
		reply:    "I can send this conversation to our team. Leave your name and e-mail and they'll reply shortly.",
	},
}

// Reply returns the canned answer for text and the topic it matched
// ("" for the default reply).
func Reply(text string) (string, string) {
	words := tokenize(text)
	joined := " " + strings.Join(words, " ") + " "
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(joined, " "+kw+" ") {
				return t.reply, t.name
			}
		}
	}
	return defaultReply, ""
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Submitter delivers a handed-off conversation.
type Submitter interface {
	Submit(ctx context.Context, in shopsdk.ContactRequest) (*shopsdk.ContactMessage, error)
}

// Bot holds one conversation. It is safe for concurrent use.
type Bot struct {
	now func() time.Time

	mu         sync.Mutex
	transcript []Message
}

func New() *Bot {
	b := &Bot{now: time.Now}
	b.transcript = []Message{{Sender: SenderBot, Text: Greeting, At: b.now()}}
	return b
}

// Ask records the user's message and the bot's reply, returning the reply.
func (b *Bot) Ask(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	reply, _ := Reply(text)

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.transcript = append(b.transcript,
		Message{Sender: SenderUser, Text: text, At: now},
		Message{Sender: SenderBot, Text: reply, At: now},
	)
	return reply
}

// Transcript returns a copy of the conversation so far.
func (b *Bot) Transcript() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.transcript...)
}

// Reset starts over with only the greeting.
func (b *Bot) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcript = []Message{{Sender: SenderBot, Text: Greeting, At: b.now()}}
}

// ErrNothingToHandOff is returned when the user has not said anything yet.
var ErrNothingToHandOff = errors.New("chatbot: conversation is empty")

// Handoff sends the conversation to staff as a contact message with source
// "chatbot".
func (b *Bot) Handoff(ctx context.Context, to Submitter, name, email string) (*shopsdk.ContactMessage, error) {
	lines := b.Transcript()

	var sb strings.Builder
	var first string
	for _, m := range lines {
		if m.Sender == SenderUser && first == "" {
			first = m.Text
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.At.Format("15:04"), m.Sender, m.Text)
	}
	if first == "" {
		return nil, ErrNothingToHandOff
	}

	return to.Submit(ctx, shopsdk.ContactRequest{
		Name:    name,
		Email:   email,
		Subject: "Chat: " + truncate(first, 60),
		Message: sb.String(),
		Source:  "chatbot",
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
