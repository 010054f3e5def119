// Package models defines the data structures shared by the relational and
// graph stores.
package models

import "time"

// Role identifies the author of a message turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// EpisodeKind classifies what an episode was for.
type EpisodeKind string

const (
	EpisodeChat            EpisodeKind = "chat"
	EpisodeTask            EpisodeKind = "task"
	EpisodeReflectionCycle EpisodeKind = "reflection_cycle"
)

// Agent is the persistent identity of a deployed bot instance.
// One row/node per distinct name, created at startup and never mutated.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Episode is one continuous conversation scope, here one per Discord channel.
type Episode struct {
	ID         string      `json:"id"`
	AgentID    string      `json:"agent_id"`
	ChannelID  string      `json:"channel_id"`
	Kind       EpisodeKind `json:"kind"`
	Summary    string      `json:"summary"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	MoodVector []float64   `json:"mood_vector,omitempty"` // [valence, arousal]
}

// Message is a single immutable turn within an episode.
type Message struct {
	ID         string         `json:"id"`
	EpisodeID  string         `json:"episode_id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	TokenCount int            `json:"token_count"`
	CreatedAt  time.Time      `json:"created_at"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Reflection is a self-review the agent writes about an episode.
type Reflection struct {
	ID           string         `json:"id"`
	EpisodeID    string         `json:"episode_id"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	QualityScore float64        `json:"quality_score"` // 0-1 self-rating
	Tags         []string       `json:"tags,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// LessonStatus tracks a lesson's adoption lifecycle.
type LessonStatus string

const (
	LessonProposed   LessonStatus = "proposed"
	LessonAdopted    LessonStatus = "adopted"
	LessonDeprecated LessonStatus = "deprecated"
)

// Lesson is a behavioral rule distilled from a reflection.
type Lesson struct {
	ID           string       `json:"id"`
	ReflectionID string       `json:"reflection_id"`
	Statement    string       `json:"statement"`
	Status       LessonStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// BehaviorEvent records something noteworthy the agent did during an episode.
type BehaviorEvent struct {
	ID          string         `json:"id"`
	EpisodeID   string         `json:"episode_id"`
	Kind        string         `json:"kind"` // "overlong_response", "tool_fail", ...
	Severity    int            `json:"severity"`
	Detector    string         `json:"detector"` // "self", "rule", "human"
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SchemaObject describes a named piece of the agent's own storage schema.
// Inert for now; no component mutates schema at runtime.
type SchemaObject struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"` // "table", "node_label", "edge_type"
	Definition map[string]any `json:"definition,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SchemaProposal is a suggested schema change awaiting review.
type SchemaProposal struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Rationale string         `json:"rationale"`
	Changes   map[string]any `json:"changes,omitempty"`
	Status    string         `json:"status"` // "proposed", "approved", "rejected"
	CreatedAt time.Time      `json:"created_at"`
}

// SchemaMigrationLog records an applied schema change.
type SchemaMigrationLog struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	AppliedAt  time.Time `json:"applied_at"`
	Success    bool      `json:"success"`
	Detail     string    `json:"detail,omitempty"`
}

// BehaviorMetric is a windowed aggregate about agent behavior.
type BehaviorMetric struct {
	ID      int64          `json:"id"`
	AgentID string         `json:"agent_id"`
	Name    string         `json:"name"`
	Value   float64        `json:"value"`
	Window  string         `json:"window"` // "episode", "1h", "24h"
	Meta    map[string]any `json:"meta,omitempty"`
	TS      time.Time      `json:"ts"`
}
