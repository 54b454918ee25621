package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// ApplySchema creates the tables and the results view. Idempotent, run at
// startup.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS polls (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('draft', 'active', 'closed')),
    created_by BIGINT NOT NULL REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ,
    allow_multiple_votes BOOLEAN NOT NULL DEFAULT FALSE,
    is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
    share_slug TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_polls_status ON polls(status);
CREATE INDEX IF NOT EXISTS idx_polls_created_by ON polls(created_by);
CREATE INDEX IF NOT EXISTS idx_polls_share_slug ON polls(share_slug);

CREATE TABLE IF NOT EXISTS poll_options (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    poll_id BIGINT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    text TEXT NOT NULL,
    position INT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (poll_id, position)
);

CREATE INDEX IF NOT EXISTS idx_poll_options_poll_id ON poll_options(poll_id);

CREATE TABLE IF NOT EXISTS votes (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    poll_id BIGINT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    option_id BIGINT NOT NULL REFERENCES poll_options(id) ON DELETE CASCADE,
    user_id BIGINT REFERENCES users(id),
    voter_ip TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_votes_poll_id ON votes(poll_id);
CREATE INDEX IF NOT EXISTS idx_votes_poll_user ON votes(poll_id, user_id);
CREATE INDEX IF NOT EXISTS idx_votes_option_id ON votes(option_id);

CREATE OR REPLACE VIEW poll_results AS
SELECT
    p.id AS poll_id,
    p.title,
    p.description,
    p.status,
    p.created_by,
    p.created_at,
    p.updated_at,
    p.expires_at,
    p.allow_multiple_votes,
    p.is_anonymous,
    p.share_slug,
    o.id AS option_id,
    o.text AS option_text,
    o.position AS option_position,
    o.created_at AS option_created_at,
    COALESCE(ov.votes_count, 0) AS option_votes,
    COALESCE(pv.total_votes, 0) AS total_votes
FROM polls p
LEFT JOIN poll_options o ON o.poll_id = p.id
LEFT JOIN (
    SELECT option_id, COUNT(*) AS votes_count FROM votes GROUP BY option_id
) ov ON ov.option_id = o.id
LEFT JOIN (
    SELECT poll_id, COUNT(*) AS total_votes FROM votes GROUP BY poll_id
) pv ON pv.poll_id = p.id
ORDER BY p.created_at DESC, o.position ASC;
`
