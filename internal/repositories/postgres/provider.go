// Package postgres implements the persistence interfaces on PostgreSQL via
// pgx. Status transitions compile to single conditional UPDATE statements and
// cart merges to upserts, which is what makes concurrent writers race-safe
// without any application-level locking.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/plateful/api/internal/repositories"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Provider owns the connection pool and hands out repository adapters bound to it.
type Provider struct {
	pool *pgxpool.Pool
}

// Connect opens and verifies a connection pool for the given DSN.
func Connect(ctx context.Context, dsn string) (*Provider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Provider{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Provider) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

// Ping verifies connectivity, used by the readiness probe.
func (p *Provider) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return errors.New("postgres: provider not initialised")
	}
	return p.pool.Ping(ctx)
}

// Migrate applies the embedded goose migrations.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("postgres: apply migrations: %w", err)
	}
	return nil
}

// Orders returns the order repository bound to this provider.
func (p *Provider) Orders() *OrderRepository { return &OrderRepository{provider: p} }

// Carts returns the cart repository bound to this provider.
func (p *Provider) Carts() *CartRepository { return &CartRepository{provider: p} }

// UnitOfWork returns a transactional boundary backed by a database transaction.
func (p *Provider) UnitOfWork() *UnitOfWork { return &UnitOfWork{provider: p} }

// UnitOfWork runs repository operations inside one database transaction.
type UnitOfWork struct {
	provider *Provider
}

type txKey struct{}

// RunInTx begins a transaction, threads it through the context for the
// provider's repositories, and commits when fn returns nil.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.provider.pool.Begin(ctx)
	if err != nil {
		return repositories.Unavailable("tx.begin", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return repositories.Unavailable("tx.commit", err)
	}
	return nil
}

// querier abstracts over the pool and an in-flight transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Provider) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.pool
}

const uniqueViolationCode = "23505"

// mapError normalises driver errors into repository error kinds.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.NotFound(op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return repositories.Conflict(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return repositories.Unavailable(op, err)
	}
	return repositories.Wrap(op, err)
}
