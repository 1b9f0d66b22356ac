package engine

import "sync"

// Ledger accumulates the player's life resources (money, knowledge, ...).
type Ledger struct {
	mu  sync.Mutex
	res map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{res: make(map[string]int)}
}

func (l *Ledger) Credit(delta map[string]int) {
	if len(delta) == 0 {
		return
	}
	l.mu.Lock()
	for k, v := range delta {
		l.res[k] += v
	}
	l.mu.Unlock()
}

func (l *Ledger) Get(resource string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.res[resource]
}

func (l *Ledger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.res))
	for k, v := range l.res {
		out[k] = v
	}
	return out
}

// Restore replaces the ledger contents (snapshot resume).
func (l *Ledger) Restore(res map[string]int) {
	l.mu.Lock()
	l.res = make(map[string]int, len(res))
	for k, v := range res {
		l.res[k] = v
	}
	l.mu.Unlock()
}
