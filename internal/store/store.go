// Package store provides the in-memory, indexed view of a transaction batch.
//
// The store is built once over the full input log and is read-only
// afterwards, which is what lets the engine evaluate customer shards in
// parallel without locking. Per-customer and per-card slices are kept in
// ascending timestamp order so window lookups are a binary search plus a
// scan linear in the window size, and per-card daily tallies are grouped
// up front instead of being recounted on every focal transaction.
package store

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Store is an immutable, queryable collection of transactions.
type Store struct {
	all        []*domain.Transaction
	byCustomer map[string][]*domain.Transaction
	byCard     map[string][]*domain.Transaction

	// cardDaily maps card id -> calendar date -> transaction count.
	cardDaily map[string]map[string]int
}

// New builds a store over the given batch. The input slice is not retained;
// index slices are sorted by timestamp, ties keeping input order.
func New(txs []*domain.Transaction) *Store {
	s := &Store{
		all:        make([]*domain.Transaction, len(txs)),
		byCustomer: make(map[string][]*domain.Transaction),
		byCard:     make(map[string][]*domain.Transaction),
		cardDaily:  make(map[string]map[string]int),
	}
	copy(s.all, txs)

	for _, tx := range txs {
		s.byCustomer[tx.CustomerID] = append(s.byCustomer[tx.CustomerID], tx)
		if tx.CardID != "" {
			s.byCard[tx.CardID] = append(s.byCard[tx.CardID], tx)
			daily := s.cardDaily[tx.CardID]
			if daily == nil {
				daily = make(map[string]int)
				s.cardDaily[tx.CardID] = daily
			}
			daily[tx.Date()]++
		}
	}

	for _, txs := range s.byCustomer {
		sortByTimestamp(txs)
	}
	for _, txs := range s.byCard {
		sortByTimestamp(txs)
	}

	return s
}

func sortByTimestamp(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}

// Len returns the number of transactions in the store.
func (s *Store) Len() int {
	return len(s.all)
}

// ByCustomer returns the customer's transactions in ascending timestamp
// order. The returned slice is shared and must not be modified.
func (s *Store) ByCustomer(customerID string) []*domain.Transaction {
	return s.byCustomer[customerID]
}

// ByCard returns the card's transactions in ascending timestamp order.
func (s *Store) ByCard(cardID string) []*domain.Transaction {
	return s.byCard[cardID]
}

// CustomerBetween returns the customer's transactions with
// from <= timestamp <= to, in ascending timestamp order.
func (s *Store) CustomerBetween(customerID string, from, to time.Time) []*domain.Transaction {
	return between(s.byCustomer[customerID], from, to)
}

// CardCountOnDate returns the number of the card's transactions on the
// given calendar date (domain.DateLayout).
func (s *Store) CardCountOnDate(cardID, date string) int {
	return s.cardDaily[cardID][date]
}

// between slices out the [from, to] window from a timestamp-sorted slice.
func between(txs []*domain.Transaction, from, to time.Time) []*domain.Transaction {
	lo := sort.Search(len(txs), func(i int) bool {
		return !txs[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(txs), func(i int) bool {
		return txs[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}
	return txs[lo:hi]
}
