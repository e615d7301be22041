package queue

import (
	"fmt"
)

// Name identifies a managed work queue.
type Name string

const (
	SearchSync Name = "search-sync"
	Crawler    Name = "crawler"
	PriceAlert Name = "price-alert"
	FraudCheck Name = "fraud-check"
)

// Managed is the fixed allow-list of queues, in sweep order.
var Managed = []Name{SearchSync, Crawler, PriceAlert, FraudCheck}

// ParseName accepts only managed queue names.
func ParseName(s string) (Name, error) {
	for _, n := range Managed {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("queue %q is not managed", s)
}
