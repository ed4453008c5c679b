package sweep

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/clanpoints/ledger"
)

// IterationError reports a failed scheduler tick. Err is set when the tick
// could not start (or panicked); Failed lists per-community failures.
type IterationError struct {
	Err    error
	Failed map[ledger.CommunityID]error
}

func (e *IterationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sweep iteration failed: %v", e.Err)
	}
	ids := make([]string, 0, len(e.Failed))
	for c := range e.Failed {
		ids = append(ids, string(c))
	}
	sort.Strings(ids)
	return fmt.Sprintf("sweep iteration failed for %d communities: %s", len(ids), strings.Join(ids, ", "))
}

func (e *IterationError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed)+1)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// errPanic wraps a recovered panic value.
var errPanic = errors.New("panic during sweep")
