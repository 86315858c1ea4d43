package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/effectus/irkit/ir"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresConfig configures the PostgreSQL store
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxConnections  int           `yaml:"max_connections" json:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate"`
}

// Postgres keeps documents in the ir_documents table
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to PostgreSQL and optionally applies migrations
func NewPostgres(ctx context.Context, config PostgresConfig) (*Postgres, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = time.Hour
	}
	if config.ConnMaxIdleTime == 0 {
		config.ConnMaxIdleTime = 30 * time.Minute
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime

	if config.AutoMigrate {
		if err := Migrate(ctx, config.DSN, "up"); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate runs a goose command ("up", "down", "status", "reset", "redo",
// "version") with the embedded migrations.
func Migrate(ctx context.Context, dsn, command string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, "migrations"); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, name string) (*ir.Document, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT body FROM ir_documents WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	doc, err := ir.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}
	return doc, nil
}

func (p *Postgres) Put(ctx context.Context, name string, doc *ir.Document) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO ir_documents (name, body) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET body = EXCLUDED.body, version = ir_documents.version + 1, updated_at = now()`,
		name, body)
	if err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, name string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM ir_documents WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT name FROM ir_documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return names, nil
}
