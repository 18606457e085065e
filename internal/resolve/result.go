package resolve

import (
	"github.com/Aman-CERP/addresolve/internal/address"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

// ErrorKind is a terminal per-item failure.
type ErrorKind string

const (
	// ErrNotFound means every enabled provider returned no match.
	ErrNotFound ErrorKind = "NOT_FOUND"
	// ErrNoProviders means no provider was enabled for the item.
	ErrNoProviders ErrorKind = "NO_PROVIDERS"
	// ErrProvider means a provider call failed; the message says why.
	ErrProvider ErrorKind = "PROVIDER_ERROR"
)

// ItemData links a resolved item to its address.
type ItemData struct {
	AddressKey string    `json:"address_key"`
	Provider   string    `json:"provider"`
	UnitType   unit.Type `json:"unit_type,omitempty"`
	UnitName   string    `json:"unit_name,omitempty"`
}

// Outcome is the result for one item: either Err is set or Data is.
type Outcome struct {
	Err     ErrorKind `json:"err,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    *ItemData `json:"data,omitempty"`
}

// Resolved reports whether the item produced an address.
func (o Outcome) Resolved() bool {
	return o.Err == "" && o.Data != nil
}

// BatchResult maps every distinct input item to its outcome. Every
// AddressKey referenced from Items is present in Addresses.
type BatchResult struct {
	Addresses map[string]address.Address `json:"addresses"`
	Items     map[string]Outcome         `json:"items"`
}

// Counts returns the number of items per outcome label.
func (r *BatchResult) Counts() map[string]int {
	counts := make(map[string]int)
	for _, o := range r.Items {
		if o.Resolved() {
			counts["resolved"]++
			continue
		}
		counts[string(o.Err)]++
	}
	return counts
}

// candidate is one item's winning address before it enters the batch.
type candidate struct {
	addr address.Address
	rank int // provider priority, lower wins
	pos  int // item position, lower wins on equal rank
}

// accumulator is owned by the orchestrating goroutine. It is only touched
// after each fan-out has joined.
type accumulator struct {
	addresses map[string]candidate
	items     map[string]Outcome
}

func newAccumulator(n int) *accumulator {
	return &accumulator{
		addresses: make(map[string]candidate, n),
		items:     make(map[string]Outcome, n),
	}
}

func (a *accumulator) done(item string) bool {
	_, ok := a.items[item]
	return ok
}

func (a *accumulator) fail(item string, kind ErrorKind, msg string) {
	a.items[item] = Outcome{Err: kind, Message: msg}
}

// resolve records a success. When several items share an address key the
// record from the highest-priority provider wins, then the earliest item,
// so the final map does not depend on completion order or strategy.
// Units stay on the item; the shared record carries none.
func (a *accumulator) resolve(item string, c candidate, providerName string) {
	a.items[item] = Outcome{Data: &ItemData{
		AddressKey: c.addr.Key,
		Provider:   providerName,
		UnitType:   c.addr.UnitType,
		UnitName:   c.addr.UnitName,
	}}
	c.addr.UnitType = ""
	c.addr.UnitName = ""
	prev, ok := a.addresses[c.addr.Key]
	if !ok || c.rank < prev.rank || (c.rank == prev.rank && c.pos < prev.pos) {
		a.addresses[c.addr.Key] = c
	}
}

func (a *accumulator) result() *BatchResult {
	out := &BatchResult{
		Addresses: make(map[string]address.Address, len(a.addresses)),
		Items:     a.items,
	}
	for k, c := range a.addresses {
		out.Addresses[k] = c.addr
	}
	return out
}
