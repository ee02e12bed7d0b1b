package store

import (
	"storefront.chat/relay/core/db"
)

type Stores struct {
	q db.Querier
}

// NewStores works over the pool or a transaction alike.
func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Companies() CompanyStore {
	return newCompanyStore(s.q)
}
