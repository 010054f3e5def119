// Package reflection records the agent's self-review artifacts:
// reflections, lessons, behavior events and behavior metrics.
//
// Nothing in the conversation turn flow drives this package. It exists as
// a capability boundary so the dormant storage shapes stay out of the core
// data path; today only the CLI exercises it.
package reflection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/raphaelgruber/slopbot/internal/models"
)

// Store is the capability surface for self-review persistence.
type Store interface {
	RecordReflection(ctx context.Context, episodeID, title, body string, quality float64, tags []string) (models.Reflection, error)
	RecordLesson(ctx context.Context, reflectionID, statement string) (models.Lesson, error)
	RecordBehaviorEvent(ctx context.Context, episodeID, kind string, severity int, detector, description string) (models.BehaviorEvent, error)
	RecordThought(ctx context.Context, messageID, kind, content string) (string, error)
	RecordMetric(ctx context.Context, agentID, name string, value float64, window string) (models.BehaviorMetric, error)
}

type relationalStore interface {
	InsertReflection(ctx context.Context, r models.Reflection) (models.Reflection, error)
	InsertLesson(ctx context.Context, l models.Lesson) (models.Lesson, error)
	InsertBehaviorEvent(ctx context.Context, ev models.BehaviorEvent) (models.BehaviorEvent, error)
	RecordBehaviorMetric(ctx context.Context, m models.BehaviorMetric) (models.BehaviorMetric, error)
}

type graphStore interface {
	AddThought(ctx context.Context, id, messageID, kind, content string) error
	AddBehaviorEvent(ctx context.Context, id, episodeID, kind string, severity int) error
}

// DualStore writes self-review artifacts to Postgres and mirrors the
// graph-shaped ones (thoughts, behavior events) into the graph store.
type DualStore struct {
	store relationalStore
	graph graphStore
}

// NewDualStore creates a Store over both backends.
func NewDualStore(store relationalStore, graph graphStore) *DualStore {
	return &DualStore{store: store, graph: graph}
}

// RecordReflection persists a reflection about an episode.
func (d *DualStore) RecordReflection(ctx context.Context, episodeID, title, body string, quality float64, tags []string) (models.Reflection, error) {
	r := models.Reflection{
		ID:           uuid.NewString(),
		EpisodeID:    episodeID,
		Title:        title,
		Body:         body,
		QualityScore: quality,
		Tags:         tags,
	}
	r, err := d.store.InsertReflection(ctx, r)
	if err != nil {
		return models.Reflection{}, fmt.Errorf("record reflection: %w", err)
	}
	return r, nil
}

// RecordLesson persists a lesson distilled from a reflection. New lessons
// start proposed.
func (d *DualStore) RecordLesson(ctx context.Context, reflectionID, statement string) (models.Lesson, error) {
	l := models.Lesson{
		ID:           uuid.NewString(),
		ReflectionID: reflectionID,
		Statement:    statement,
		Status:       models.LessonProposed,
	}
	l, err := d.store.InsertLesson(ctx, l)
	if err != nil {
		return models.Lesson{}, fmt.Errorf("record lesson: %w", err)
	}
	return l, nil
}

// RecordBehaviorEvent persists a behavior event and mirrors it into the
// graph attached to its episode.
func (d *DualStore) RecordBehaviorEvent(ctx context.Context, episodeID, kind string, severity int, detector, description string) (models.BehaviorEvent, error) {
	ev := models.BehaviorEvent{
		ID:          uuid.NewString(),
		EpisodeID:   episodeID,
		Kind:        kind,
		Severity:    severity,
		Detector:    detector,
		Description: description,
	}
	ev, err := d.store.InsertBehaviorEvent(ctx, ev)
	if err != nil {
		return models.BehaviorEvent{}, fmt.Errorf("record behavior event: %w", err)
	}
	if err := d.graph.AddBehaviorEvent(ctx, ev.ID, ev.EpisodeID, ev.Kind, ev.Severity); err != nil {
		return models.BehaviorEvent{}, fmt.Errorf("record behavior event: %w", err)
	}
	return ev, nil
}

// RecordThought attaches a thought node to a message in the graph. Thoughts
// have no relational shape; they live in the graph only.
func (d *DualStore) RecordThought(ctx context.Context, messageID, kind, content string) (string, error) {
	id := uuid.NewString()
	if err := d.graph.AddThought(ctx, id, messageID, kind, content); err != nil {
		return "", fmt.Errorf("record thought: %w", err)
	}
	return id, nil
}

// RecordMetric appends a behavior metric sample.
func (d *DualStore) RecordMetric(ctx context.Context, agentID, name string, value float64, window string) (models.BehaviorMetric, error) {
	m := models.BehaviorMetric{
		AgentID: agentID,
		Name:    name,
		Value:   value,
		Window:  window,
	}
	m, err := d.store.RecordBehaviorMetric(ctx, m)
	if err != nil {
		return models.BehaviorMetric{}, fmt.Errorf("record metric: %w", err)
	}
	return m, nil
}
