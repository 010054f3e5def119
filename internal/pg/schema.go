package pg

// schemaStatements holds the idempotent DDL for all conversation tables.
// Foreign keys enforce the parent-before-child invariants at the storage
// layer: a message referencing a nonexistent episode is rejected here, not
// in application code.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	// ── Episodes & messages ──────────────────────────────────────────────
	`CREATE TABLE IF NOT EXISTS agent (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name        TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS episode (
		id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id     UUID NOT NULL REFERENCES agent(id),
		channel_id   TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		ended_at     TIMESTAMPTZ,
		kind         TEXT NOT NULL DEFAULT 'chat',
		summary      TEXT,
		mood_vector  DOUBLE PRECISION[]
	)`,
	// At most one open episode per channel, enforced by the store so two
	// processes cannot double-mint.
	`CREATE UNIQUE INDEX IF NOT EXISTS episode_open_channel
		ON episode (channel_id) WHERE ended_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS message (
		id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		episode_id   UUID NOT NULL REFERENCES episode(id),
		seq          BIGSERIAL,
		role         TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		content      TEXT NOT NULL,
		token_count  INTEGER NOT NULL,
		meta         JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS message_episode_seq
		ON message (episode_id, seq)`,

	// ── Reflections & lessons ────────────────────────────────────────────
	`CREATE TABLE IF NOT EXISTS reflection (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		episode_id     UUID NOT NULL REFERENCES episode(id),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		title          TEXT,
		body           TEXT,
		quality_score  NUMERIC,
		tags           TEXT[],
		meta           JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS lesson (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		reflection_id  UUID NOT NULL REFERENCES reflection(id),
		statement      TEXT,
		status         TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// ── Behavior monitoring ──────────────────────────────────────────────
	`CREATE TABLE IF NOT EXISTS behavior_event (
		id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		episode_id   UUID NOT NULL REFERENCES episode(id),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		kind         TEXT,
		severity     INTEGER,
		detector     TEXT,
		description  TEXT,
		meta         JSONB
	)`,

	`CREATE TABLE IF NOT EXISTS behavior_metric (
		id        BIGSERIAL PRIMARY KEY,
		agent_id  UUID REFERENCES agent(id),
		ts        TIMESTAMPTZ NOT NULL DEFAULT now(),
		name      TEXT,
		value     NUMERIC,
		"window"  TEXT,
		meta      JSONB
	)`,

	// ── Meta-schema tables ───────────────────────────────────────────────
	// Inert by design: no code in this repository reads or writes these.
	`CREATE TABLE IF NOT EXISTS schema_object (
		id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		kind         TEXT,
		name         TEXT,
		parent_name  TEXT,
		version      INTEGER DEFAULT 1,
		spec         JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_by   TEXT,
		status       TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS schema_proposal (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_by      TEXT,
		motivation      TEXT,
		impact_summary  TEXT,
		pg_sql          TEXT,
		mg_cypher       TEXT,
		status          TEXT,
		review_notes    TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS schema_migration_log (
		id             BIGSERIAL PRIMARY KEY,
		proposal_id    UUID REFERENCES schema_proposal(id),
		applied_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		applied_by     TEXT,
		success        BOOLEAN,
		error_message  TEXT
	)`,

	// ── Graph outbox ─────────────────────────────────────────────────────
	// Intent records for graph mutations. Postgres is the source of truth;
	// the reconciler replays pending rows until the graph converges.
	`CREATE TABLE IF NOT EXISTS graph_outbox (
		id          BIGSERIAL PRIMARY KEY,
		op          TEXT NOT NULL,
		payload     JSONB NOT NULL,
		status      TEXT NOT NULL DEFAULT 'pending'
		            CHECK (status IN ('pending', 'done', 'failed')),
		attempts    INTEGER NOT NULL DEFAULT 0,
		last_error  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS graph_outbox_pending
		ON graph_outbox (id) WHERE status = 'pending'`,
}
