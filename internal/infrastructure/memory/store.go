// Package memory implementa los repositorios en memoria para desarrollo y tests.
//
// Las escrituras de una transacción se comprueban al registrarse y otra vez al hacer
// commit, y se aplican todas juntas bajo el lock global: si fn devuelve error no queda
// nada aplicado. Las lecturas dentro de una transacción ven el estado confirmado.
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/facturae-api/internal/application/billing"
	"github.com/jhoicas/facturae-api/internal/domain/entity"
	"github.com/jhoicas/facturae-api/internal/domain/repository"
)

var _ billing.TxRunner = (*Store)(nil)

// Store estado completo en memoria.
type Store struct {
	mu          sync.RWMutex
	invoices    map[string]*entity.Invoice
	details     map[string][]*entity.InvoiceDetail
	clients     map[string]*entity.Client
	issuers     map[string]*entity.Issuer
	records     map[string][]*entity.AttestationRecord // por emisor, ordenados por seq
	heads       map[string]*entity.ChainHead
	submissions map[string]*entity.Submission
	users       map[string]*entity.User

	locksMu    sync.Mutex
	chainLocks map[string]*sync.Mutex
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		invoices:    make(map[string]*entity.Invoice),
		details:     make(map[string][]*entity.InvoiceDetail),
		clients:     make(map[string]*entity.Client),
		issuers:     make(map[string]*entity.Issuer),
		records:     make(map[string][]*entity.AttestationRecord),
		heads:       make(map[string]*entity.ChainHead),
		submissions: make(map[string]*entity.Submission),
		users:       make(map[string]*entity.User),
		chainLocks:  make(map[string]*sync.Mutex),
	}
}

// Repos repositorios sin transacción: cada escritura se aplica al momento.
func (s *Store) Repos() repository.Repos {
	return newRepos(&session{s: s, immediate: true})
}

// Run ejecuta fn y aplica sus escrituras solo si no devuelve error.
func (s *Store) Run(ctx context.Context, fn func(repos repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &session{s: s}
	if err := fn(newRepos(tx)); err != nil {
		return err
	}
	return tx.commit()
}

// RunInChain como Run pero con el mutex de la cadena del emisor tomado durante todo fn.
func (s *Store) RunInChain(ctx context.Context, issuerID string, fn func(repos repository.Repos, head *entity.ChainHead) error) error {
	lock := s.chainLock(issuerID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &session{s: s}
	repos := newRepos(tx)
	head, err := repos.Chains.LockHead(ctx, issuerID)
	if err != nil {
		return err
	}
	if err := fn(repos, head); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) chainLock(issuerID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.chainLocks[issuerID]
	if !ok {
		l = &sync.Mutex{}
		s.chainLocks[issuerID] = l
	}
	return l
}

type op struct {
	check func() error
	apply func()
}

// session agrupa las escrituras de una transacción (o las aplica al momento).
type session struct {
	s         *Store
	immediate bool
	ops       []op
}

func (t *session) read(fn func()) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	fn()
}

func (t *session) write(check func() error, apply func()) error {
	if t.immediate {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		if check != nil {
			if err := check(); err != nil {
				return err
			}
		}
		apply()
		return nil
	}
	if check != nil {
		var err error
		t.read(func() { err = check() })
		if err != nil {
			return err
		}
	}
	t.ops = append(t.ops, op{check: check, apply: apply})
	return nil
}

func (t *session) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, o := range t.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(); err != nil {
			return err
		}
	}
	for _, o := range t.ops {
		o.apply()
	}
	t.ops = nil
	return nil
}

func newRepos(t *session) repository.Repos {
	return repository.Repos{
		Invoices:    &invoiceRepo{t: t},
		Clients:     &clientRepo{t: t},
		Issuers:     &issuerRepo{t: t},
		Records:     &recordRepo{t: t},
		Chains:      &chainRepo{t: t},
		Submissions: &submissionRepo{t: t},
		Users:       &userRepo{t: t},
	}
}
