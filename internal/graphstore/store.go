// Package graphstore mirrors the conversation record into a Bolt-protocol
// property graph (Memgraph or Neo4j). Nodes and edges parallel the Postgres
// rows: (Agent)-[:RAN]->(Episode)-[:HAS_MESSAGE]->(Message), with a NEXT
// edge chaining successive messages in a channel.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
)

// ErrNoMatch reports that a mutation's prerequisite node was missing, so
// nothing was created. The underlying MATCH...CREATE completes without an
// error in that case; the result counters are the only signal.
var ErrNoMatch = errors.New("graphstore: prerequisite node not found")

// Store executes graph mutations. Each call opens a scoped session and
// releases it on every exit path.
type Store struct {
	driver neo4j.Driver
	logger *slog.Logger
}

// New connects to the graph store over Bolt and verifies connectivity.
func New(ctx context.Context, url, user, pass string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriver(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify connectivity: %w", err)
	}

	logger.Info("graph connection established", "url", url)
	return &Store{driver: driver, logger: logger}, nil
}

// Close shuts down the driver and its connection pool.
func (s *Store) Close(ctx context.Context) error {
	s.logger.Info("closing graph connection")
	return s.driver.Close(ctx)
}

// run executes one write query in its own session and returns the summary
// counters.
func (s *Store) run(ctx context.Context, query string, params map[string]any) (neo4j.Counters, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return nil, err
	}
	return summary.Counters(), nil
}

// EnsureAgent upserts the agent node by id. Safe to call repeatedly; the
// name converges to the last value written.
func (s *Store) EnsureAgent(ctx context.Context, id, name string) error {
	_, err := s.run(ctx, `
		MERGE (a:Agent {id: $id})
		SET a.name = $name
	`, map[string]any{"id": id, "name": name})
	if err != nil {
		return fmt.Errorf("ensure agent: %w", err)
	}
	return nil
}

// CreateEpisode creates an episode node owned by an existing agent, linked
// with a RAN edge. Returns ErrNoMatch when the agent node is absent.
//
// The started_at property is deliberately a local-time string literal: the
// original graph content used toString(localDateTime()) and downstream
// consumers match on that representation.
func (s *Store) CreateEpisode(ctx context.Context, id, agentID, kind, summary string) error {
	counters, err := s.run(ctx, `
		MATCH (a:Agent {id: $agentId})
		CREATE (e:Episode {id: $id, kind: $kind, summary: $summary, started_at: toString(localDateTime())})
		CREATE (a)-[:RAN]->(e)
	`, map[string]any{"id": id, "agentId": agentID, "kind": kind, "summary": summary})
	if err != nil {
		return fmt.Errorf("create episode: %w", err)
	}
	if counters.NodesCreated() == 0 {
		return fmt.Errorf("create episode %s: agent %s: %w", id, agentID, ErrNoMatch)
	}
	return nil
}

// AddMessage creates a message node under an existing episode with a
// HAS_MESSAGE edge. When previousMessageID is non-empty the new node is
// additionally chained to its predecessor with a NEXT edge. A missing
// episode or predecessor yields ErrNoMatch.
func (s *Store) AddMessage(ctx context.Context, id, episodeID, role, content string, tokenCount int, previousMessageID string) error {
	counters, err := s.run(ctx, `
		MATCH (e:Episode {id: $episodeId})
		CREATE (m:Message {id: $id, role: $role, content: $content, token_count: $tokenCount, ts: toString(localDateTime())})
		CREATE (e)-[:HAS_MESSAGE]->(m)
	`, map[string]any{
		"id":         id,
		"episodeId":  episodeID,
		"role":       role,
		"content":    content,
		"tokenCount": tokenCount,
	})
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	if counters.NodesCreated() == 0 {
		return fmt.Errorf("add message %s: episode %s: %w", id, episodeID, ErrNoMatch)
	}

	if previousMessageID == "" {
		return nil
	}

	counters, err = s.run(ctx, `
		MATCH (prev:Message {id: $previousMessageId})
		MATCH (curr:Message {id: $id})
		CREATE (prev)-[:NEXT]->(curr)
	`, map[string]any{"previousMessageId": previousMessageID, "id": id})
	if err != nil {
		return fmt.Errorf("link message: %w", err)
	}
	if counters.RelationshipsCreated() == 0 {
		return fmt.Errorf("link message %s -> %s: %w", previousMessageID, id, ErrNoMatch)
	}
	return nil
}

// AddThought attaches a thought node to an existing message.
func (s *Store) AddThought(ctx context.Context, id, messageID, kind, content string) error {
	counters, err := s.run(ctx, `
		MATCH (m:Message {id: $messageId})
		CREATE (t:Thought {id: $id, kind: $kind, content: $content})
		CREATE (m)-[:HAS_THOUGHT]->(t)
	`, map[string]any{"id": id, "messageId": messageID, "kind": kind, "content": content})
	if err != nil {
		return fmt.Errorf("add thought: %w", err)
	}
	if counters.NodesCreated() == 0 {
		return fmt.Errorf("add thought %s: message %s: %w", id, messageID, ErrNoMatch)
	}
	return nil
}

// AddBehaviorEvent attaches a behavior event node to an existing episode.
func (s *Store) AddBehaviorEvent(ctx context.Context, id, episodeID, kind string, severity int) error {
	counters, err := s.run(ctx, `
		MATCH (e:Episode {id: $episodeId})
		CREATE (b:BehaviorEvent {id: $id, kind: $kind, severity: $severity})
		CREATE (b)-[:IN_EPISODE]->(e)
	`, map[string]any{"id": id, "episodeId": episodeID, "kind": kind, "severity": severity})
	if err != nil {
		return fmt.Errorf("add behavior event: %w", err)
	}
	if counters.NodesCreated() == 0 {
		return fmt.Errorf("add behavior event %s: episode %s: %w", id, episodeID, ErrNoMatch)
	}
	return nil
}

// WipeData removes every node and edge. Testing only.
func (s *Store) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping all graph data")
	if _, err := s.run(ctx, `MATCH (n) DETACH DELETE n`, nil); err != nil {
		return fmt.Errorf("wipe graph: %w", err)
	}
	return nil
}

// NextChain returns the message ids reachable from the episode's first
// message by following NEXT edges, in chain order. Used by the history
// command and by reconciliation checks.
func (s *Store) NextChain(ctx context.Context, episodeID string) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (e:Episode {id: $episodeId})-[:HAS_MESSAGE]->(first:Message)
		WHERE NOT ()-[:NEXT]->(first)
		MATCH path = (first)-[:NEXT*0..]->(m:Message)
		WITH m, length(path) AS depth
		ORDER BY depth
		RETURN m.id AS id
	`, map[string]any{"episodeId": episodeID})
	if err != nil {
		return nil, fmt.Errorf("next chain: %w", err)
	}

	var ids []string
	for result.Next(ctx) {
		if id, ok := result.Record().Get("id"); ok {
			if str, ok := id.(string); ok {
				ids = append(ids, str)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("next chain: %w", err)
	}
	return ids, nil
}
