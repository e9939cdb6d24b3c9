// Package sqlite implements the business-configuration store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/warintorn/shoptalk/bot/business"
	"github.com/warintorn/shoptalk/internal/profile"
	"github.com/warintorn/shoptalk/store"
)

// DB is the sqlite-backed store driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the database named by the profile DSN. WAL journal mode
// and a busy timeout keep concurrent readers from tripping over the
// occasional config write.
func NewDB(p *profile.Profile) (store.Driver, error) {
	if p.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// With modernc.org/sqlite each pragma is prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", p.DSN+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", p.DSN)
	}

	// Single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)

	return &DB{db: sqliteDB, profile: p}, nil
}

// GetDB returns the raw handle, used by seed tooling and tests.
func (d *DB) GetDB() *sql.DB { return d.db }

const schema = `
CREATE TABLE IF NOT EXISTS business (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	default_fallback_message TEXT NOT NULL DEFAULT '',
	off_hours_note TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS intent (
	business_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	triggers TEXT NOT NULL DEFAULT '[]',
	policy TEXT NOT NULL DEFAULT '',
	response_template TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (business_id, id)
);
CREATE TABLE IF NOT EXISTS product (
	business_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	price REAL NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	description TEXT NOT NULL DEFAULT '',
	recommended_alternative TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (business_id, id)
);
CREATE TABLE IF NOT EXISTS faq_entry (
	business_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	keywords TEXT NOT NULL DEFAULT '[]',
	question TEXT NOT NULL DEFAULT '',
	answer TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS knowledge_doc (
	business_id TEXT NOT NULL,
	id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '[]',
	content TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (business_id, id)
);
CREATE TABLE IF NOT EXISTS sale_script (
	business_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '[]',
	reply TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (business_id, id)
);
CREATE TABLE IF NOT EXISTS category_shortcut (
	business_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	label TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS category_trigger (
	business_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]'
);
`

// Migrate applies the latest schema. All statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}

// GetBusinessConfig loads the full routing configuration for one
// business, preserving the configured ordering of FAQ entries,
// shortcuts, and category triggers.
func (d *DB) GetBusinessConfig(ctx context.Context, businessID string) (*business.Config, error) {
	cfg := &business.Config{BusinessID: businessID}

	row := d.db.QueryRowContext(ctx,
		`SELECT name, default_fallback_message FROM business WHERE id = ?`, businessID)
	if err := row.Scan(&cfg.BusinessName, &cfg.DefaultFallbackMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load business")
	}

	if err := d.loadIntents(ctx, cfg); err != nil {
		return nil, err
	}
	if err := d.loadProducts(ctx, cfg); err != nil {
		return nil, err
	}
	if err := d.loadFAQEntries(ctx, cfg); err != nil {
		return nil, err
	}
	if err := d.loadKnowledgeDocs(ctx, cfg); err != nil {
		return nil, err
	}
	if err := d.loadSaleScripts(ctx, cfg); err != nil {
		return nil, err
	}
	if err := d.loadShortcutsAndTriggers(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *DB) loadIntents(ctx context.Context, cfg *business.Config) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, active, triggers, policy, response_template, priority
		 FROM intent WHERE business_id = ? ORDER BY priority DESC, id`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load intents")
	}
	defer rows.Close()

	for rows.Next() {
		var it business.IntentDefinition
		var active int
		var triggers string
		if err := rows.Scan(&it.ID, &it.Name, &active, &triggers, &it.Policy, &it.ResponseTemplate, &it.Priority); err != nil {
			return errors.Wrap(err, "failed to scan intent")
		}
		it.Active = active != 0
		if err := json.Unmarshal([]byte(triggers), &it.Triggers); err != nil {
			return errors.Wrapf(err, "bad triggers for intent %s", it.ID)
		}
		cfg.Intents = append(cfg.Intents, &it)
	}
	return rows.Err()
}

func (d *DB) loadProducts(ctx context.Context, cfg *business.Config) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, tags, price, category, status, description, recommended_alternative
		 FROM product WHERE business_id = ? ORDER BY position, id`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load products")
	}
	defer rows.Close()

	for rows.Next() {
		var p business.Product
		var tags, status string
		if err := rows.Scan(&p.ID, &p.Name, &tags, &p.Price, &p.Category, &status, &p.Description, &p.RecommendedAlternative); err != nil {
			return errors.Wrap(err, "failed to scan product")
		}
		p.Status = business.ProductStatus(status)
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return errors.Wrapf(err, "bad tags for product %s", p.ID)
		}
		cfg.Products = append(cfg.Products, &p)
	}
	return rows.Err()
}

func (d *DB) loadFAQEntries(ctx context.Context, cfg *business.Config) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT keywords, question, answer FROM faq_entry
		 WHERE business_id = ? ORDER BY position`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load faq entries")
	}
	defer rows.Close()

	for rows.Next() {
		var e business.FAQEntry
		var keywords string
		if err := rows.Scan(&keywords, &e.Question, &e.Answer); err != nil {
			return errors.Wrap(err, "failed to scan faq entry")
		}
		if err := json.Unmarshal([]byte(keywords), &e.Keywords); err != nil {
			return errors.Wrap(err, "bad faq keywords")
		}
		cfg.FAQEntries = append(cfg.FAQEntries, &e)
	}
	return rows.Err()
}

func (d *DB) loadKnowledgeDocs(ctx context.Context, cfg *business.Config) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, title, keywords, content FROM knowledge_doc
		 WHERE business_id = ? ORDER BY id`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load knowledge docs")
	}
	defer rows.Close()

	for rows.Next() {
		var doc business.KnowledgeDoc
		var keywords string
		if err := rows.Scan(&doc.ID, &doc.Title, &keywords, &doc.Content); err != nil {
			return errors.Wrap(err, "failed to scan knowledge doc")
		}
		if err := json.Unmarshal([]byte(keywords), &doc.Keywords); err != nil {
			return errors.Wrapf(err, "bad keywords for doc %s", doc.ID)
		}
		cfg.KnowledgeDocs = append(cfg.KnowledgeDocs, &doc)
	}
	return rows.Err()
}

func (d *DB) loadSaleScripts(ctx context.Context, cfg *business.Config) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, keywords, reply FROM sale_script
		 WHERE business_id = ? ORDER BY id`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load sale scripts")
	}
	defer rows.Close()

	for rows.Next() {
		var s business.SaleScript
		var keywords string
		if err := rows.Scan(&s.ID, &s.Name, &keywords, &s.Reply); err != nil {
			return errors.Wrap(err, "failed to scan sale script")
		}
		if err := json.Unmarshal([]byte(keywords), &s.Keywords); err != nil {
			return errors.Wrapf(err, "bad keywords for script %s", s.ID)
		}
		cfg.SaleScripts = append(cfg.SaleScripts, &s)
	}
	return rows.Err()
}

func (d *DB) loadShortcutsAndTriggers(ctx context.Context, cfg *business.Config) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT label FROM category_shortcut WHERE business_id = ? ORDER BY position`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load category shortcuts")
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return errors.Wrap(err, "failed to scan category shortcut")
		}
		cfg.CategoryShortcuts = append(cfg.CategoryShortcuts, label)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	trows, err := d.db.QueryContext(ctx,
		`SELECT category, keywords FROM category_trigger WHERE business_id = ? ORDER BY position`, cfg.BusinessID)
	if err != nil {
		return errors.Wrap(err, "failed to load category triggers")
	}
	defer trows.Close()
	for trows.Next() {
		var ct business.CategoryTrigger
		var keywords string
		if err := trows.Scan(&ct.Category, &keywords); err != nil {
			return errors.Wrap(err, "failed to scan category trigger")
		}
		if err := json.Unmarshal([]byte(keywords), &ct.Keywords); err != nil {
			return errors.Wrapf(err, "bad keywords for category %s", ct.Category)
		}
		cfg.CategoryTriggers = append(cfg.CategoryTriggers, ct)
	}
	return trows.Err()
}

// ListOffHoursNotes returns businesses with a configured off-hours note.
func (d *DB) ListOffHoursNotes(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, off_hours_note FROM business WHERE off_hours_note != ''`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load off-hours notes")
	}
	defer rows.Close()

	notes := make(map[string]string)
	for rows.Next() {
		var id, note string
		if err := rows.Scan(&id, &note); err != nil {
			return nil, errors.Wrap(err, "failed to scan off-hours note")
		}
		notes[id] = note
	}
	return notes, rows.Err()
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}
