package pipeline

import (
	"errors"
	"fmt"

	types "github.com/weftlabs/weft-backend/internal/domain"
	pkgerrors "github.com/weftlabs/weft-backend/internal/pkg/errors"
)

// rollup derives a parent's status from its children's statuses.
// Precedence: any FAILED wins, then any RUNNING, then all SUCCESS, then any
// QUEUED. Anything else, including a SUCCESS and NOT_STARTED mix left behind
// by an aborted scheduling pass, keeps the parent unchanged.
func rollup(current types.Status, children []types.Status) (types.Status, error) {
	if len(children) == 0 {
		return current, nil
	}

	var failed, running, queued, success, notStarted int
	for _, st := range children {
		switch st {
		case types.StatusFailed:
			failed++
		case types.StatusRunning:
			running++
		case types.StatusQueued:
			queued++
		case types.StatusSuccess:
			success++
		case types.StatusNotStarted:
			notStarted++
		default:
			return current, fmt.Errorf("rollup: unknown child status %q: %w", st, pkgerrors.ErrRollupInvariant)
		}
	}

	switch {
	case failed > 0:
		return types.StatusFailed, nil
	case running > 0:
		return types.StatusRunning, nil
	case success == len(children):
		return types.StatusSuccess, nil
	case queued > 0:
		return types.StatusQueued, nil
	default:
		return current, nil
	}
}

// rollupStrict is rollup with one extra check for the jobs-to-group level:
// a group's jobs are all created in one worker pass, so a SUCCESS and
// NOT_STARTED mix with nothing queued or running cannot be produced and is
// reported as an invariant violation instead of being folded away.
func rollupStrict(current types.Status, children []types.Status) (types.Status, error) {
	next, err := rollup(current, children)
	if err != nil {
		return next, err
	}
	if next == current && len(children) > 0 {
		var success, notStarted int
		for _, st := range children {
			switch st {
			case types.StatusSuccess:
				success++
			case types.StatusNotStarted:
				notStarted++
			}
		}
		if success > 0 && notStarted > 0 {
			return current, fmt.Errorf("rollup: success=%d not_started=%d of %d children: %w",
				success, notStarted, len(children), pkgerrors.ErrRollupInvariant)
		}
	}
	return next, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, pkgerrors.ErrNotFound)
}
