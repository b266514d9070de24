package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const notifyChannel = "document_changes"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	count_key  TEXT,
	unique_key TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS documents_unique_key
	ON documents (collection, unique_key) WHERE unique_key IS NOT NULL;

CREATE INDEX IF NOT EXISTS documents_count_key
	ON documents (collection, count_key) WHERE count_key IS NOT NULL;

CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('document_changes', OLD.collection);
	ELSE
		PERFORM pg_notify('document_changes', NEW.collection);
	END IF;
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify
	AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_document_change();
`

// PostgresStore keeps documents as JSONB rows, one table for all collections.
// Subscriptions are driven by LISTEN/NOTIFY.
type PostgresStore struct {
	db      *sql.DB
	connStr string
}

func NewPostgresStore(db *sql.DB, connStr string) *PostgresStore {
	return &PostgresStore{
		db:      db,
		connStr: connStr,
	}
}

// Migrate creates the documents table, its indexes and the change trigger
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate documents schema: %w", err)
	}
	return nil
}

// Create inserts a document under a generated id
func (s *PostgresStore) Create(ctx context.Context, collectionPath string, record any) (string, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return "", err
	}
	data, err := marshalFields(record)
	if err != nil {
		return "", writeErr("create", ref.String(), err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at) VALUES ($1, $2, $3, $4)`,
		ref.String(), id, data, time.Now(),
	)
	if err != nil {
		return "", writeErr("create", ref.String(), err)
	}
	return id, nil
}

// CreateAdmitted checks and inserts inside one transaction. Writers sharing a
// count key are serialized by an advisory lock; the unique index backs the
// unique key.
func (s *PostgresStore) CreateAdmitted(ctx context.Context, collectionPath string, record any, adm Admission) (string, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return "", err
	}
	key := ref.String()
	data, err := marshalFields(record)
	if err != nil {
		return "", writeErr("create", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", writeErr("begin", key, err)
	}
	defer tx.Rollback()

	if adm.CountKey != "" {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key+"#"+adm.CountKey); err != nil {
			return "", writeErr("lock", key, err)
		}
	}

	err = adm.check(
		func() (bool, error) {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND unique_key = $2)`,
				key, adm.UniqueKey,
			).Scan(&exists)
			if err != nil {
				return false, writeErr("check unique", key, err)
			}
			return exists, nil
		},
		func() (int, error) {
			var count int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM documents WHERE collection = $1 AND count_key = $2`,
				key, adm.CountKey,
			).Scan(&count)
			if err != nil {
				return 0, writeErr("count", key, err)
			}
			return count, nil
		},
	)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, count_key, unique_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key, id, data, nullString(adm.CountKey), nullString(adm.UniqueKey), time.Now(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", adm.duplicate()
		}
		return "", writeErr("create", key, err)
	}

	if err := tx.Commit(); err != nil {
		return "", writeErr("commit", key, err)
	}
	return id, nil
}

// Delete removes a document; a missing row is not an error
func (s *PostgresStore) Delete(ctx context.Context, collectionPath, id string) error {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		ref.String(), id,
	)
	if err != nil {
		return writeErr("delete", ref.String(), err)
	}
	return nil
}

// GetAll returns matching documents ordered by creation time
func (s *PostgresStore) GetAll(ctx context.Context, collectionPath string, filters ...Filter) ([]Document, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	return s.query(ctx, ref.String(), filters)
}

// GetOne returns a document by id
func (s *PostgresStore) GetOne(ctx context.Context, collectionPath, id string) (Document, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		ref.String(), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, ref.String(), id)
	}
	if err != nil {
		return nil, readErr("get", ref.String(), err)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, readErr("get", ref.String(), err)
	}
	return materialize(id, fields), nil
}

// Subscribe listens for change notifications on the collection and re-reads
// the full matching set after each one. A lost connection ends the stream.
func (s *PostgresStore) Subscribe(ctx context.Context, path string, filters ...Filter) (*Subscription, error) {
	ref, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	key := ref.String()

	failures := make(chan error, 1)
	listener := pq.NewListener(s.connStr, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err == nil {
				return
			}
			log.Printf("[Store] Listener event %d on %s: %v", ev, key, err)
			if ev == pq.ListenerEventDisconnected || ev == pq.ListenerEventConnectionAttemptFailed {
				select {
				case failures <- err:
				default:
				}
			}
		})
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, readErr("subscribe", key, err)
	}

	sub := newSubscription(ctx, key)
	sub.start(func(ctx context.Context, emit func([]Document) bool) error {
		defer listener.Close()

		docs, err := s.query(ctx, key, filters)
		if err != nil {
			return err
		}
		if !emit(docs) {
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-failures:
				return readErr("subscribe", key, err)
			case n, ok := <-listener.Notify:
				if !ok {
					return readErr("subscribe", key, errors.New("listener closed"))
				}
				if !notificationTouches(n, key) {
					continue
				}
				docs, err := s.query(ctx, key, filters)
				if err != nil {
					return err
				}
				if !emit(docs) {
					return nil
				}
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	})
	return sub, nil
}

// notificationTouches reports whether a notification concerns the collection.
// pq delivers nil after a reconnect, when changes may have been missed.
func notificationTouches(n *pq.Notification, key string) bool {
	return n == nil || n.Extra == key
}

func (s *PostgresStore) query(ctx context.Context, key string, filters []Filter) ([]Document, error) {
	q, args := buildSelect(key, filters)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, readErr("query", key, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, readErr("scan", key, err)
		}
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, readErr("decode", key, err)
		}
		docs = append(docs, materialize(id, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("query", key, err)
	}
	return docs, nil
}

// buildSelect pushes filters down as comparisons on the JSONB text value
func buildSelect(key string, filters []Filter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	args := []any{key}

	for _, f := range filters {
		args = append(args, f.Field, textOf(f.Value))
		field, value := len(args)-1, len(args)
		switch f.Op {
		case OpNotEqual:
			fmt.Fprintf(&b, " AND (data ->> $%d) IS DISTINCT FROM $%d", field, value)
		default:
			fmt.Fprintf(&b, " AND (data ->> $%d) = $%d", field, value)
		}
	}
	b.WriteString(" ORDER BY created_at ASC, id ASC")
	return b.String(), args
}

func marshalFields(record any) (string, error) {
	fields, err := toFields(record)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
