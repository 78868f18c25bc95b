package tracker

// Merge reconciles two snapshots for the same identity that evolved
// independently. It is deterministic and idempotent, and commutative except
// that exact facet-timestamp ties favour a.
//
// When one snapshot is at least as new in both facets it is returned
// unchanged; otherwise the result takes the position facet from whichever
// snapshot has the newer position timestamp and grafts the other's static
// facet onto it.
func Merge(a, b *TargetSnapshot) *TargetSnapshot {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.positionTimestamp >= b.positionTimestamp && a.staticTimestamp >= b.staticTimestamp {
		return a
	}
	if b.positionTimestamp >= a.positionTimestamp && b.staticTimestamp >= a.staticTimestamp {
		return b
	}
	if a.positionTimestamp >= b.positionTimestamp {
		return a.withStaticFrom(b)
	}
	return b.withStaticFrom(a)
}
