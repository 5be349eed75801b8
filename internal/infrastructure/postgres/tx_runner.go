package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
)

// Ensure TxRunner implements billing.TxRunner.
var _ billing.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// NewRepos repositorios sobre pool o tx.
func NewRepos(q Querier) repository.Repos {
	return repository.Repos{
		Invoices:    NewInvoiceRepository(q),
		Clients:     NewClientRepository(q),
		Issuers:     NewIssuerRepository(q),
		Records:     NewAttestationRepository(q),
		Chains:      NewChainRepository(q),
		Submissions: NewSubmissionRepository(q),
		Users:       NewUserRepository(q),
	}
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
func (r *TxRunner) Run(ctx context.Context, fn func(repos repository.Repos) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(NewRepos(tx))
	})
}

// RunInChain igual que Run pero serializado por emisor: toma el advisory lock de la
// cadena y bloquea su cabecera antes de llamar a fn. Cadenas distintas no compiten.
func (r *TxRunner) RunInChain(ctx context.Context, issuerID string, fn func(repos repository.Repos, head *entity.ChainHead) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, issuerID); err != nil {
			return fmt.Errorf("chain lock: %w", err)
		}
		repos := NewRepos(tx)
		head, err := repos.Chains.LockHead(ctx, issuerID)
		if err != nil {
			return err
		}
		return fn(repos, head)
	})
}

func (r *TxRunner) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
