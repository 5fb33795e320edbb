package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT,
	session_title VARCHAR(200) NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_sessions_user_idx ON chat_sessions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	session_id      TEXT NOT NULL REFERENCES chat_sessions(id),
	role            VARCHAR(10) NOT NULL,
	content         TEXT NOT NULL,
	context_sources JSONB NOT NULL DEFAULT '[]',
	message_type    VARCHAR(20) NOT NULL DEFAULT 'text',
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, created_at, seq);
`

// Postgres is a SessionStore backed by PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database identified by dsn
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create postgres pool")
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the session tables when they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return pgError(err, "failed to migrate schema")
	}
	return nil
}

// Close releases all pooled connections
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateSession(ctx context.Context, title string, userID model.UserID) (*model.Session, error) {
	now := time.Now().UTC()
	session := &model.Session{
		ID:        model.NewSessionID(),
		UserID:    userID,
		Title:     title,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, session_title, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, TRUE, $4, $4)`,
		string(session.ID), nullableUser(userID), title, now)
	if err != nil {
		return nil, pgError(err, "failed to create session", goerr.V("session_id", session.ID))
	}
	return session, nil
}

const selectSession = `SELECT id, user_id, session_title, is_active, created_at, updated_at FROM chat_sessions`

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		session model.Session
		id      string
		userID  *string
	)
	if err := row.Scan(&id, &userID, &session.Title, &session.Active, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	session.ID = model.SessionID(id)
	if userID != nil {
		session.UserID = model.UserID(*userID)
	}
	return &session, nil
}

func (p *Postgres) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	session, err := scanSession(p.pool.QueryRow(ctx, selectSession+` WHERE id = $1`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "no such session", goerr.V("session_id", id))
		}
		return nil, pgError(err, "failed to get session", goerr.V("session_id", id))
	}
	return session, nil
}

func (p *Postgres) ListSessionsByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.Session, error) {
	query := selectSession + ` WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{string(userID)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(err, "failed to list sessions", goerr.V("user_id", userID))
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, pgError(err, "failed to scan session")
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err, "failed to iterate sessions")
	}
	return sessions, nil
}

func (p *Postgres) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = model.NewMessageID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.ContextSources == nil {
		stored.ContextSources = []model.Source{}
	}

	sources, err := json.Marshal(stored.ContextSources)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal context sources")
	}

	// The existence check and insert run as one statement
	err = p.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, context_sources, message_type, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7
		 WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = $2)
		 RETURNING seq`,
		string(stored.ID), string(stored.SessionID), string(stored.Role), stored.Content,
		sources, string(stored.Kind), stored.CreatedAt,
	).Scan(&stored.Seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "cannot append message", goerr.V("session_id", msg.SessionID))
		}
		return nil, pgError(err, "failed to append message", goerr.V("session_id", msg.SessionID))
	}

	return &stored, nil
}

func (p *Postgres) ListMessages(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error) {
	if _, err := p.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT seq, id, session_id, role, content, context_sources, message_type, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC, seq ASC`,
		string(sessionID))
	if err != nil {
		return nil, pgError(err, "failed to list messages", goerr.V("session_id", sessionID))
	}
	defer rows.Close()

	messages := make([]*model.Message, 0)
	for rows.Next() {
		var (
			msg                 model.Message
			id, sid, role, kind string
			sources             []byte
		)
		if err := rows.Scan(&msg.Seq, &id, &sid, &role, &msg.Content, &sources, &kind, &msg.CreatedAt); err != nil {
			return nil, pgError(err, "failed to scan message")
		}
		msg.ID = model.MessageID(id)
		msg.SessionID = model.SessionID(sid)
		msg.Role = model.Role(role)
		msg.Kind = model.MessageKind(kind)
		if err := json.Unmarshal(sources, &msg.ContextSources); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal context sources", goerr.V("message_id", id))
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err, "failed to iterate messages")
	}

	return messages, nil
}

func (p *Postgres) CloseSession(ctx context.Context, id model.SessionID) (bool, error) {
	// updated_at only moves on the first close
	tag, err := p.pool.Exec(ctx,
		`UPDATE chat_sessions
		 SET updated_at = CASE WHEN is_active THEN $2 ELSE updated_at END, is_active = FALSE
		 WHERE id = $1`,
		string(id), time.Now().UTC())
	if err != nil {
		return false, pgError(err, "failed to close session", goerr.V("session_id", id))
	}
	return tag.RowsAffected() > 0, nil
}

func nullableUser(userID model.UserID) any {
	if userID == "" {
		return nil
	}
	return string(userID)
}

func pgError(err error, msg string, opts ...goerr.Option) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return goerr.Wrap(model.ErrServiceUnavailable, msg, append(opts, goerr.V("cause", err.Error()))...)
	}
	return goerr.Wrap(err, msg, opts...)
}
