package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// memDB is an in-memory store shared by the position and account fakes.
type memDB struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	accounts  map[string]domain.Account

	listErr    error
	markErrFor map[string]error
	getAcctErr error
	applyErr   error
	closeErr   error
	listCalls  int
}

func newMemDB() *memDB {
	return &memDB{
		positions:  make(map[string]domain.Position),
		accounts:   make(map[string]domain.Account),
		markErrFor: make(map[string]error),
	}
}

func (db *memDB) putAccount(a domain.Account) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[a.ID] = a
}

func (db *memDB) putPosition(p domain.Position) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.positions[p.ID] = p
}

func (db *memDB) position(id string) domain.Position {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.positions[id]
}

func (db *memDB) account(id string) domain.Account {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.accounts[id]
}

func (db *memDB) calls() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.listCalls
}

type memPositions struct{ db *memDB }

func (s memPositions) ListOpenWithContext(context.Context) ([]domain.PositionWithContext, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.listCalls++
	if s.db.listErr != nil {
		return nil, s.db.listErr
	}

	var out []domain.PositionWithContext
	for _, p := range s.db.positions {
		if p.Status != domain.PositionStatusOpen {
			continue
		}
		out = append(out, domain.PositionWithContext{Position: p, Account: s.db.accounts[p.AccountID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position.ID < out[j].Position.ID })
	return out, nil
}

func (s memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s memPositions) MarkLiquidated(_ context.Context, rec domain.LiquidationRecord) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.markErrFor[rec.PositionID]; err != nil {
		return err
	}
	p, ok := s.db.positions[rec.PositionID]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrPositionNotOpen
	}
	exit, pnl, closed := rec.ExitPrice, rec.RealizedPnL, rec.ClosedAt
	p.Status = domain.PositionStatusLiquidated
	p.ExitPrice = &exit
	p.RealizedPnL = &pnl
	p.UnrealizedPnL = 0
	p.ClosedAt = &closed
	s.db.positions[p.ID] = p
	return nil
}

func (s memPositions) CloseAllForAccount(_ context.Context, accountID string, status domain.PositionStatus, closedAt time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.closeErr != nil {
		return 0, s.db.closeErr
	}
	var n int64
	for id, p := range s.db.positions {
		if p.AccountID != accountID || p.Status != domain.PositionStatusOpen {
			continue
		}
		at := closedAt
		p.Status = status
		p.UnrealizedPnL = 0
		p.ClosedAt = &at
		s.db.positions[id] = p
		n++
	}
	return n, nil
}

type memAccounts struct{ db *memDB }

func (s memAccounts) GetByID(_ context.Context, id string) (domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.getAcctErr != nil {
		return domain.Account{}, s.db.getAcctErr
	}
	a, ok := s.db.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (s memAccounts) ApplyRealizedPnL(_ context.Context, t domain.RealizedTrade) (domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.applyErr != nil {
		return domain.Account{}, s.db.applyErr
	}
	a, ok := s.db.accounts[t.AccountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	a.Balance += t.PnL
	a.ProfitLoss += t.PnL
	a.TotalTrades++
	if t.Win {
		a.WinningTrades++
	} else {
		a.LosingTrades++
	}
	s.db.accounts[a.ID] = a
	return a, nil
}

func (s memAccounts) SetStatus(_ context.Context, id string, status domain.AccountStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	s.db.accounts[id] = a
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{
		ID: int64(len(a.entries) + 1), Event: event, Detail: detail, CreatedAt: time.Now(),
	})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

func (a *memAudit) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range a.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memAudit) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Event
	}
	return out
}

type published struct {
	channel string
	event   string
	payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, channel, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{channel: channel, event: event, payload: payload})
	return p.err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAlerter) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAlerter) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
