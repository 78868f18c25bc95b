package store

import (
	"github.com/coastwatch/aistracker/errs"
)

func notFound(mmsi int64) error {
	return errs.New("store/memory", errs.CodeNotFound,
		errs.WithMessage("target not tracked"), errs.WithMMSI(mmsi))
}

func conflict(mmsi int64) error {
	return errs.New("store/memory", errs.CodeConflict,
		errs.WithMessage("version mismatch"), errs.WithMMSI(mmsi),
		errs.WithRemediation("reload the record and reapply the report"))
}

// IsConflict reports whether the error is a compare-and-swap version
// mismatch, the signal to retry the read-apply-install cycle.
func IsConflict(err error) bool {
	return errs.CodeOf(err) == errs.CodeConflict
}

// IsNotFound reports whether the error marks an untracked identity.
func IsNotFound(err error) bool {
	return errs.CodeOf(err) == errs.CodeNotFound
}
