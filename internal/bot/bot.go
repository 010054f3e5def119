// Package bot runs the Discord conversation loop: inbound events in,
// persisted turns and generated replies out.
package bot

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/raphaelgruber/slopbot/internal/metrics"
	"github.com/raphaelgruber/slopbot/internal/models"
)

const (
	// MaxMessageLen is Discord's hard per-message size ceiling.
	MaxMessageLen = 2000

	apologyReply     = "Sorry, I encountered an error while processing your request."
	emptyPromptReply = "You mentioned me! What's up?"
)

var mentionPattern = regexp.MustCompile(`<@!?[0-9]+>`)

// Generator produces a reply for a user prompt.
type Generator interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Memory persists conversation turns.
type Memory interface {
	GetOrCreateEpisode(ctx context.Context, channelID string) (string, error)
	AppendMessage(ctx context.Context, channelID string, role models.Role, content string) (models.Message, error)
}

// Bot wires the Discord session to the memory manager and the LLM.
type Bot struct {
	session *discordgo.Session
	memory  Memory
	model   Generator
	logger  *slog.Logger
	metrics *metrics.Collector

	// baseCtx parents every turn so shutdown cancels in-flight work.
	baseCtx context.Context
}

// New creates a bot around an unopened Discord session.
func New(ctx context.Context, session *discordgo.Session, memory Memory, model Generator, logger *slog.Logger, collector *metrics.Collector) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		session: session,
		memory:  memory,
		model:   model,
		logger:  logger,
		metrics: collector,
		baseCtx: ctx,
	}
}

// Start registers handlers, sets gateway intents and opens the session.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent
	return b.session.Open()
}

// Stop closes the Discord session.
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("logged in", "username", r.User.Username, "discriminator", r.User.Discriminator)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}
	if !b.addressedToMe(s, m) {
		return
	}

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		b.logger.Debug("typing indicator failed", "channel_id", m.ChannelID, "error", err)
	}

	prompt := StripMentions(m.Content)
	if prompt == "" {
		b.reply(s, m, emptyPromptReply)
		return
	}

	chunks, err := b.RunTurn(b.baseCtx, m.ChannelID, prompt)
	if err != nil {
		b.logger.Error("turn failed", "channel_id", m.ChannelID, "error", err)
		b.reply(s, m, apologyReply)
		return
	}

	for _, chunk := range chunks {
		b.reply(s, m, chunk)
	}
}

// RunTurn persists the user turn, generates a reply, persists the
// assistant turn and returns the reply split to Discord's size ceiling.
func (b *Bot) RunTurn(ctx context.Context, channelID, prompt string) ([]string, error) {
	if _, err := b.memory.GetOrCreateEpisode(ctx, channelID); err != nil {
		return nil, err
	}
	if _, err := b.memory.AppendMessage(ctx, channelID, models.RoleUser, prompt); err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := b.model.Reply(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.RecordLLMUsage(time.Since(start),
			int64(models.EstimateTokens(prompt)), int64(models.EstimateTokens(text)))
	}

	if _, err := b.memory.AppendMessage(ctx, channelID, models.RoleAssistant, text); err != nil {
		return nil, err
	}

	// Discord rejects empty messages; an empty reply means nothing to send.
	if text == "" {
		b.logger.Warn("model returned empty reply", "channel_id", channelID)
		return nil, nil
	}

	return SplitMessage(text, MaxMessageLen), nil
}

// addressedToMe reports whether the event mentions the bot or arrived in a
// DM channel.
func (b *Bot) addressedToMe(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if s.State != nil && s.State.User != nil {
		for _, u := range m.Mentions {
			if u.ID == s.State.User.ID {
				return true
			}
		}
	}

	ch, err := s.State.Channel(m.ChannelID)
	if err != nil {
		ch, err = s.Channel(m.ChannelID)
	}
	if err != nil {
		b.logger.Debug("channel lookup failed", "channel_id", m.ChannelID, "error", err)
		return false
	}
	return ch.Type == discordgo.ChannelTypeDM
}

func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	start := time.Now()
	if _, err := s.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
		b.logger.Error("reply failed", "channel_id", m.ChannelID, "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.RecordTiming(metrics.OpReply, time.Since(start))
	}
}

// StripMentions removes the leading bot mention from a message and trims
// surrounding whitespace.
func StripMentions(content string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(content, ""))
}
