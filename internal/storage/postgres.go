package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgPool is the subset of pgxpool.Pool used by Postgres.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ pgPool = (*pgxpool.Pool)(nil)

// Postgres implements Directory and Sink on PostgreSQL. Each namespace is
// a schema; per-subject tables are created on first write.
type Postgres struct {
	pool  pgPool
	names Resolver

	mu      sync.Mutex
	ensured map[string]bool
}

// NewPostgres creates a Postgres store on the given pool.
func NewPostgres(pool *pgxpool.Pool, names Resolver) *Postgres {
	return &Postgres{pool: pool, names: names, ensured: make(map[string]bool)}
}

func ident(ns Namespace, table string) string {
	return pgx.Identifier{string(ns), table}.Sanitize()
}

// isMissingRelation reports errors raised when the schema or table of a
// namespace or subject does not exist yet.
func isMissingRelation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01" || pgErr.Code == "3F000"
	}
	return false
}

// Template returns the named template of the subject.
func (p *Postgres) Template(ctx context.Context, ns Namespace, subjectID, name string) (*Template, error) {
	q := fmt.Sprintf(`SELECT name, template_id, status, type, category, header_type, header,
		message, footer, actions, sub_type, cards FROM %s WHERE name = $1`,
		ident(ns, p.names.TemplatesTable(subjectID)))

	var t Template
	var actions, cards []byte
	err := p.pool.QueryRow(ctx, q, name).Scan(
		&t.Name, &t.TemplateID, &t.Status, &t.Type, &t.Category, &t.HeaderType, &t.Header,
		&t.Message, &t.Footer, &actions, &t.SubType, &cards,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMissingRelation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query template %q: %w", name, err)
	}
	t.Actions = actions
	t.Cards = cards
	return &t, nil
}

// User returns the subject's account record.
func (p *Postgres) User(ctx context.Context, ns Namespace, subjectID string) (*User, error) {
	q := fmt.Sprintf(`SELECT id, balance, business_whatsapp_number, webengage_endpoint,
		webengage_auth_token FROM %s WHERE id = $1`, ident(ns, UsersTable))

	var u User
	err := p.pool.QueryRow(ctx, q, subjectID).Scan(
		&u.ID, &u.Balance, &u.BusinessWhatsappNumber, &u.Callback.Endpoint, &u.Callback.AuthToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMissingRelation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user %s: %w", subjectID, err)
	}
	return &u, nil
}

// UnitPrice reads one category price from the subject's pricing row for dialCode.
func (p *Postgres) UnitPrice(ctx context.Context, ns Namespace, subjectID, dialCode, category string) (*float64, error) {
	q := fmt.Sprintf(`SELECT (prices ->> $2::text)::float8 FROM %s WHERE dial_code = $1`,
		ident(ns, p.names.PricingTable(subjectID)))

	var price *float64
	if err := p.pool.QueryRow(ctx, q, dialCode, category).Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMissingRelation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query pricing %s: %w", dialCode, err)
	}
	return price, nil
}

// UpsertSessions applies all session mutations in one batch round trip.
// $set fields are overwritten on conflict; billing counters are written
// only when the row is inserted.
func (p *Postgres) UpsertSessions(ctx context.Context, ns Namespace, muts []*Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	if err := p.ensureAll(ctx, ns, muts); err != nil {
		return err
	}

	b := &pgx.Batch{}
	for _, m := range muts {
		set := m.SessionUpdate.Update.Set
		ins := m.SessionUpdate.Update.SetOnInsert
		counters, err := marshalCounters(ins)
		if err != nil {
			return err
		}
		b.Queue(fmt.Sprintf(`INSERT INTO %s (contact_number, sent_by, last_message, last_message_type,
			last_message_time, is_blocked, intervene, utility, marketing, authentication, service)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (contact_number) DO UPDATE SET
				sent_by = EXCLUDED.sent_by,
				last_message = EXCLUDED.last_message,
				last_message_type = EXCLUDED.last_message_type,
				last_message_time = EXCLUDED.last_message_time,
				is_blocked = EXCLUDED.is_blocked,
				intervene = EXCLUDED.intervene`,
			ident(ns, p.names.SessionsTable(m.SubjectID))),
			m.SessionUpdate.Filter.ContactNumber, set.SentBy, set.LastMessage, set.LastMessageType,
			set.LastMessageTime, set.IsBlocked, set.Intervene,
			counters[0], counters[1], counters[2], counters[3],
		)
	}

	if err := p.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upsert %d sessions in %s: %w", len(muts), ns, err)
	}
	return nil
}

// InsertLogs appends all log entries in one batch round trip. Entries whose
// attempt id is already stored are skipped.
func (p *Postgres) InsertLogs(ctx context.Context, ns Namespace, muts []*Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	if err := p.ensureAll(ctx, ns, muts); err != nil {
		return err
	}

	b := &pgx.Batch{}
	for _, m := range muts {
		e := m.LiveChatInsert
		data, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshal chat record: %w", err)
		}
		var errDoc []byte
		if e.Error != nil {
			if errDoc, err = json.Marshal(e.Error); err != nil {
				return fmt.Errorf("marshal log error: %w", err)
			}
		}
		b.Queue(fmt.Sprintf(`INSERT INTO %s (attempt_id, data, sent_by, message_request_id, message_id,
			timestamp, wamid, status, error, erp_type, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (attempt_id) DO NOTHING`,
			ident(ns, p.names.LiveChatTable(m.SubjectID))),
			e.AttemptID, data, e.SentBy, e.MessageRequestID, e.MessageID,
			e.Timestamp, e.Wamid, string(e.Status), errDoc, e.ErpType, e.DurationMs, e.CreatedAt,
		)
	}

	if err := p.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert %d log entries in %s: %w", len(muts), ns, err)
	}
	return nil
}

func marshalCounters(c BillingCounters) ([4][]byte, error) {
	var out [4][]byte
	for i, v := range []BillingCounter{c.Utility, c.Marketing, c.Authentication, c.Service} {
		b, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("marshal billing counter: %w", err)
		}
		out[i] = b
	}
	return out, nil
}

func (p *Postgres) ensureAll(ctx context.Context, ns Namespace, muts []*Mutation) error {
	seen := make(map[string]bool, 1)
	for _, m := range muts {
		if seen[m.SubjectID] {
			continue
		}
		seen[m.SubjectID] = true
		if err := p.EnsureSubject(ctx, ns, m.SubjectID); err != nil {
			return err
		}
	}
	return nil
}

// EnsureSubject creates the namespace schema and the subject's tables if
// they do not exist. Results are cached per process.
func (p *Postgres) EnsureSubject(ctx context.Context, ns Namespace, subjectID string) error {
	key := string(ns) + "/" + subjectID

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured[key] {
		return nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{string(ns)}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			business_whatsapp_number TEXT NOT NULL DEFAULT '',
			webengage_endpoint TEXT NOT NULL DEFAULT '',
			webengage_auth_token TEXT NOT NULL DEFAULT '')`, ident(ns, UsersTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			template_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			header_type TEXT NOT NULL DEFAULT '',
			header TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			footer TEXT NOT NULL DEFAULT '',
			actions JSONB,
			sub_type TEXT NOT NULL DEFAULT '',
			cards JSONB)`, ident(ns, p.names.TemplatesTable(subjectID))),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dial_code TEXT PRIMARY KEY,
			prices JSONB NOT NULL DEFAULT '{}')`, ident(ns, p.names.PricingTable(subjectID))),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			contact_number TEXT PRIMARY KEY,
			sent_by TEXT NOT NULL,
			last_message TEXT NOT NULL,
			last_message_type TEXT NOT NULL,
			last_message_time TIMESTAMPTZ NOT NULL,
			is_blocked BOOLEAN NOT NULL,
			intervene BOOLEAN NOT NULL,
			utility JSONB NOT NULL,
			marketing JSONB NOT NULL,
			authentication JSONB NOT NULL,
			service JSONB NOT NULL)`, ident(ns, p.names.SessionsTable(subjectID))),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			attempt_id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			sent_by TEXT NOT NULL,
			message_request_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			wamid TEXT NOT NULL,
			status TEXT NOT NULL,
			error JSONB,
			erp_type TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL)`, ident(ns, p.names.LiveChatTable(subjectID))),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil && !isDuplicateObject(err) {
			return fmt.Errorf("ensure tables for %s: %w", key, err)
		}
	}

	p.ensured[key] = true
	return nil
}

// isDuplicateObject matches the races of concurrent IF NOT EXISTS DDL
// from several processes.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" || pgErr.Code == "42P07" || pgErr.Code == "42P06"
	}
	return false
}
