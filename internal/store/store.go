// Package store defines keyed storage for target snapshots.
package store

import (
	"context"
	"time"

	"github.com/coastwatch/aistracker/errs"
	"github.com/coastwatch/aistracker/internal/schema"
	"github.com/coastwatch/aistracker/internal/tracker"
)

// Record wraps one identity's current snapshot with store bookkeeping. The
// version counter arbitrates concurrent writers: CompareAndSwap succeeds only
// against the version the writer read.
type Record struct {
	MMSI      int64
	Version   uint64
	Target    *tracker.TargetSnapshot
	UpdatedAt time.Time
	TTL       time.Duration
	Stale     bool
}

// Store is the keyed snapshot store contract. Implementations must make the
// read-apply-install cycle safe for concurrent writers on the same identity.
type Store interface {
	Get(ctx context.Context, mmsi int64) (Record, error)
	Put(ctx context.Context, record Record) (Record, error)
	CompareAndSwap(ctx context.Context, prevVersion uint64, record Record) (Record, error)
}

// Validate ensures the record conforms to store rules.
func (r Record) Validate() error {
	if err := schema.ValidateMMSI(r.MMSI); err != nil {
		return err
	}
	if r.Target == nil {
		return errs.New("store/record", errs.CodeInvalid,
			errs.WithMessage("target snapshot required"), errs.WithMMSI(r.MMSI))
	}
	if r.Target.MMSI() != r.MMSI {
		return errs.New("store/record", errs.CodeInvalid,
			errs.WithMessage("record key does not match snapshot identity"), errs.WithMMSI(r.MMSI))
	}
	return nil
}
