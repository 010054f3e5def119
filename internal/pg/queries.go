package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/raphaelgruber/slopbot/internal/models"
)

// InsertAgent creates an agent row. The id and created_at default
// server-side when zero-valued.
func (c *Client) InsertAgent(ctx context.Context, name string) (models.Agent, error) {
	var a models.Agent
	err := c.pool.QueryRow(ctx, `
		INSERT INTO agent (name) VALUES ($1)
		RETURNING id, name, created_at
	`, name).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err != nil {
		return models.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

// GetAgentByName looks up an agent by its unique name.
// Returns ErrNotFound if no row matches.
func (c *Client) GetAgentByName(ctx context.Context, name string) (models.Agent, error) {
	var a models.Agent
	err := c.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM agent WHERE name = $1
	`, name).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Agent{}, ErrNotFound
	}
	if err != nil {
		return models.Agent{}, fmt.Errorf("get agent by name: %w", err)
	}
	return a, nil
}

// InsertEpisode creates an episode row with a caller-supplied id.
// The agent FK is enforced by the schema.
func (c *Client) InsertEpisode(ctx context.Context, ep models.Episode) (models.Episode, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO episode (id, agent_id, channel_id, kind, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at
	`, ep.ID, ep.AgentID, ep.ChannelID, ep.Kind, ep.Summary).Scan(&ep.StartedAt)
	if err != nil {
		return models.Episode{}, fmt.Errorf("insert episode: %w", err)
	}
	return ep, nil
}

// GetOpenEpisodeByChannel returns the most recent episode for a channel
// that has not been closed, or ErrNotFound.
func (c *Client) GetOpenEpisodeByChannel(ctx context.Context, channelID string) (models.Episode, error) {
	var ep models.Episode
	var summary *string
	err := c.pool.QueryRow(ctx, `
		SELECT id, agent_id, channel_id, kind, summary, started_at
		FROM episode
		WHERE channel_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, channelID).Scan(&ep.ID, &ep.AgentID, &ep.ChannelID, &ep.Kind, &summary, &ep.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Episode{}, ErrNotFound
	}
	if err != nil {
		return models.Episode{}, fmt.Errorf("get open episode: %w", err)
	}
	if summary != nil {
		ep.Summary = *summary
	}
	return ep, nil
}

// CloseEpisode marks an episode as ended.
func (c *Client) CloseEpisode(ctx context.Context, episodeID string) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE episode SET ended_at = now() WHERE id = $1 AND ended_at IS NULL
	`, episodeID)
	if err != nil {
		return fmt.Errorf("close episode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertMessage creates a message row with a caller-supplied id. The
// episode FK is enforced by the schema.
func (c *Client) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO message (id, episode_id, role, content, token_count, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, msg.ID, msg.EpisodeID, msg.Role, msg.Content, msg.TokenCount, msg.Meta).Scan(&msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListEpisodeMessages returns an episode's messages in insertion order.
func (c *Client) ListEpisodeMessages(ctx context.Context, episodeID string) ([]models.Message, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, episode_id, role, content, token_count, created_at
		FROM message
		WHERE episode_id = $1
		ORDER BY seq
	`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.EpisodeID, &m.Role, &m.Content, &m.TokenCount, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// LastMessageID returns the id of the most recently inserted message in an
// episode, or ErrNotFound for an empty episode. Used to resume the NEXT
// chain when an open episode is recovered after a restart.
func (c *Client) LastMessageID(ctx context.Context, episodeID string) (string, error) {
	var id string
	err := c.pool.QueryRow(ctx, `
		SELECT id FROM message
		WHERE episode_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, episodeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("last message id: %w", err)
	}
	return id, nil
}

// InsertReflection creates a reflection row.
func (c *Client) InsertReflection(ctx context.Context, r models.Reflection) (models.Reflection, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO reflection (id, episode_id, title, body, quality_score, tags, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, r.ID, r.EpisodeID, r.Title, r.Body, r.QualityScore, r.Tags, r.Meta).Scan(&r.CreatedAt)
	if err != nil {
		return models.Reflection{}, fmt.Errorf("insert reflection: %w", err)
	}
	return r, nil
}

// InsertLesson creates a lesson row linked to a reflection.
func (c *Client) InsertLesson(ctx context.Context, l models.Lesson) (models.Lesson, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO lesson (id, reflection_id, statement, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, l.ID, l.ReflectionID, l.Statement, l.Status).Scan(&l.CreatedAt)
	if err != nil {
		return models.Lesson{}, fmt.Errorf("insert lesson: %w", err)
	}
	return l, nil
}

// InsertBehaviorEvent creates a behavior event row.
func (c *Client) InsertBehaviorEvent(ctx context.Context, ev models.BehaviorEvent) (models.BehaviorEvent, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO behavior_event (id, episode_id, kind, severity, detector, description, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, ev.ID, ev.EpisodeID, ev.Kind, ev.Severity, ev.Detector, ev.Description, ev.Meta).Scan(&ev.CreatedAt)
	if err != nil {
		return models.BehaviorEvent{}, fmt.Errorf("insert behavior event: %w", err)
	}
	return ev, nil
}

// RecordBehaviorMetric appends a behavior metric sample.
func (c *Client) RecordBehaviorMetric(ctx context.Context, m models.BehaviorMetric) (models.BehaviorMetric, error) {
	err := c.pool.QueryRow(ctx, `
		INSERT INTO behavior_metric (agent_id, name, value, "window", meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, ts
	`, m.AgentID, m.Name, m.Value, m.Window, m.Meta).Scan(&m.ID, &m.TS)
	if err != nil {
		return models.BehaviorMetric{}, fmt.Errorf("record behavior metric: %w", err)
	}
	return m, nil
}
