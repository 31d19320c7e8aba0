// Package risk holds the engine's in-memory risk state: the open-position
// indexes rebuilt by the snapshot cache and the last-price table written by
// the price ingestor. Both are owned objects guarded by their own locks; they
// are constructed once at startup and shared by reference.
package risk

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/riskengine/internal/domain"
)

// Entry is a cached open position together with its normalized symbol key.
type Entry struct {
	Key      string
	Position domain.Position
}

type accountEntry struct {
	account   domain.Account
	positions map[string]Entry
}

// State is the engine's working set: open positions indexed by symbol and by
// account. Snapshot refreshes replace it wholesale; liquidations and account
// failures remove from it. Claims serialize protocols per position and per
// account so a slow store write cannot be raced by the next tick.
type State struct {
	mu       sync.RWMutex
	bySymbol map[string]map[string]Entry
	accounts map[string]*accountEntry
	keyOf    map[string]string

	claimMu     sync.Mutex
	claimedPos  map[string]struct{}
	claimedAcct map[string]struct{}
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		bySymbol:    make(map[string]map[string]Entry),
		accounts:    make(map[string]*accountEntry),
		keyOf:       make(map[string]string),
		claimedPos:  make(map[string]struct{}),
		claimedAcct: make(map[string]struct{}),
	}
}

// Replace swaps both indexes for ones built from rows. key maps a position to
// its normalized symbol. The swap is atomic with respect to readers; the old
// indexes are never partially visible.
func (s *State) Replace(rows []domain.PositionWithContext, key func(domain.Position) string) {
	bySymbol := make(map[string]map[string]Entry)
	accounts := make(map[string]*accountEntry)
	keyOf := make(map[string]string, len(rows))

	for _, row := range rows {
		e := Entry{Key: key(row.Position), Position: row.Position}

		sym := bySymbol[e.Key]
		if sym == nil {
			sym = make(map[string]Entry)
			bySymbol[e.Key] = sym
		}
		sym[e.Position.ID] = e
		keyOf[e.Position.ID] = e.Key

		acct := accounts[row.Account.ID]
		if acct == nil {
			acct = &accountEntry{account: row.Account, positions: make(map[string]Entry)}
			accounts[row.Account.ID] = acct
		}
		acct.positions[e.Position.ID] = e
	}

	s.mu.Lock()
	s.bySymbol = bySymbol
	s.accounts = accounts
	s.keyOf = keyOf
	s.mu.Unlock()
}

// PositionsFor returns a copy of the open positions cached for symbol, sorted
// by position ID. It returns nil when there are none.
func (s *State) PositionsFor(symbol string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sym := s.bySymbol[symbol]
	if len(sym) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(sym))
	for _, e := range sym {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Account returns the cached account snapshot and a copy of its open
// positions.
func (s *State) Account(id string) (domain.Account, []Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, nil, false
	}
	out := make([]Entry, 0, len(acct.positions))
	for _, e := range acct.positions {
		out = append(out, e)
	}
	sortEntries(out)
	return acct.account, out, true
}

// RemovePosition drops a position from both indexes.
func (s *State) RemovePosition(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *State) removeLocked(id string) (Entry, bool) {
	key, ok := s.keyOf[id]
	if !ok {
		return Entry{}, false
	}
	delete(s.keyOf, id)

	sym := s.bySymbol[key]
	e := sym[id]
	delete(sym, id)
	if len(sym) == 0 {
		delete(s.bySymbol, key)
	}
	if acct := s.accounts[e.Position.AccountID]; acct != nil {
		delete(acct.positions, id)
	}
	return e, true
}

// ApplyRealized folds a realized result into the cached account so health
// checks between snapshot refreshes see the new balance.
func (s *State) ApplyRealized(accountID string, pnl float64, win bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return
	}
	acct.account.Balance += pnl
	acct.account.ProfitLoss += pnl
	acct.account.TotalTrades++
	if win {
		acct.account.WinningTrades++
	} else {
		acct.account.LosingTrades++
	}
}

// RemoveAccount drops an account and all of its positions, returning the
// removed positions.
func (s *State) RemoveAccount(id string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil
	}
	removed := make([]Entry, 0, len(acct.positions))
	for pid := range acct.positions {
		if e, ok := s.removeLocked(pid); ok {
			removed = append(removed, e)
		}
	}
	delete(s.accounts, id)
	sortEntries(removed)
	return removed
}

// Positions returns every cached position sorted by ID.
func (s *State) Positions() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.keyOf))
	for _, sym := range s.bySymbol {
		for _, e := range sym {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// Accounts returns every cached account sorted by ID.
func (s *State) Accounts() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of cached positions and accounts.
func (s *State) Counts() (positions, accounts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keyOf), len(s.accounts)
}

// ClaimPosition marks a position as having a protocol in flight. It returns
// false when another caller already holds the claim. release must be called
// once the protocol finishes.
func (s *State) ClaimPosition(id string) (release func(), ok bool) {
	return s.claim(s.claimedPos, id)
}

// ClaimAccount is ClaimPosition for account-level protocols.
func (s *State) ClaimAccount(id string) (release func(), ok bool) {
	return s.claim(s.claimedAcct, id)
}

func (s *State) claim(set map[string]struct{}, id string) (func(), bool) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	if _, held := set[id]; held {
		return nil, false
	}
	set[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.claimMu.Lock()
			delete(set, id)
			s.claimMu.Unlock()
		})
	}, true
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Position.ID < es[j].Position.ID })
}
