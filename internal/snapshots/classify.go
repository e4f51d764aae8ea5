package snapshots

import (
	"strings"

	"github.com/appminuta/mapa-ventas/internal/inventory"
	"github.com/shopspring/decimal"
)

// Bucket is the normalized availability class of a free-text unit status.
type Bucket int

const (
	BucketUnavailable Bucket = iota
	BucketAvailable
	BucketReserved
	BucketSold
)

// Classify maps a status label to its bucket with case-insensitive substring matching.
// "no disponible" must be tested before "disponible" because it contains it.
// Unrecognized and empty labels fall back to BucketUnavailable.
func Classify(status string) Bucket {
	normalized := strings.ToLower(status)
	switch {
	case strings.Contains(normalized, "no disponible"):
		return BucketUnavailable
	case strings.Contains(normalized, "disponible"):
		return BucketAvailable
	case strings.Contains(normalized, "reserva"):
		return BucketReserved
	case strings.Contains(normalized, "vendid"):
		return BucketSold
	default:
		return BucketUnavailable
	}
}

// countsTowardStock reports whether units in the bucket are still sellable inventory.
func (b Bucket) countsTowardStock() bool {
	return b == BucketAvailable || b == BucketReserved
}

type stockTally struct {
	total       int
	available   int
	reserved    int
	sold        int
	unavailable int
	value       decimal.Decimal
	area        decimal.Decimal
}

func tallyUnits(units []inventory.Unit) stockTally {
	tally := stockTally{value: decimal.Zero, area: decimal.Zero}
	for _, unit := range units {
		tally.total++
		bucket := Classify(unit.StatusText())
		switch bucket {
		case BucketAvailable:
			tally.available++
		case BucketReserved:
			tally.reserved++
		case BucketSold:
			tally.sold++
		default:
			tally.unavailable++
		}
		if bucket.countsTowardStock() {
			tally.value = tally.value.Add(unit.Price())
			tally.area = tally.area.Add(unit.Area())
		}
	}
	return tally
}
