package pool

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// OrderStore is the order ledger: every order ever submitted, by id and by owner.
// Not thread-safe; the engine serializes access.
type OrderStore struct {
	orders  map[OrderID]*Order
	byOwner map[uuid.UUID][]OrderID
	nextID  OrderID
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[OrderID]*Order),
		byOwner: make(map[uuid.UUID][]OrderID),
		nextID:  1,
	}
}

// NextID returns the id the next Create will assign.
func (s *OrderStore) NextID() OrderID {
	return s.nextID
}

// Create records a new Pending order.
func (s *OrderStore) Create(owner uuid.UUID, side Side, deposit int64, payload []byte, now time.Time) *Order {
	o := &Order{
		ID:        s.nextID,
		Owner:     owner,
		Side:      side,
		Deposit:   deposit,
		Payload:   append([]byte(nil), payload...),
		Status:    StatusPending,
		CreatedAt: now,
	}
	s.nextID++
	s.orders[o.ID] = o
	s.byOwner[owner] = append(s.byOwner[owner], o.ID)
	return o
}

// Get returns the live order, or nil.
func (s *OrderStore) Get(id OrderID) *Order {
	return s.orders[id]
}

// ByOwner returns the owner's orders in submission order.
func (s *OrderStore) ByOwner(owner uuid.UUID) []*Order {
	ids := s.byOwner[owner]
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.orders[id])
	}
	return out
}

// All returns every order sorted by id.
func (s *OrderStore) All() []*Order {
	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of orders recorded.
func (s *OrderStore) Len() int {
	return len(s.orders)
}

// Restore rebuilds the store from a snapshot.
func (s *OrderStore) Restore(orders []*Order, nextID OrderID) {
	s.orders = make(map[OrderID]*Order, len(orders))
	s.byOwner = make(map[uuid.UUID][]OrderID)
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	for _, o := range orders {
		s.orders[o.ID] = o
		s.byOwner[o.Owner] = append(s.byOwner[o.Owner], o.ID)
		if o.ID >= nextID {
			nextID = o.ID + 1
		}
	}
	if nextID < 1 {
		nextID = 1
	}
	s.nextID = nextID
}
