package weaviate

import (
	"fmt"
	"strings"
)

// TransientError is a store failure that survived the full retry budget.
// The status is one of 429, 502, 503, 504.
type TransientError struct {
	Op     string
	Status int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("weaviate: %s: transient status %d persisted after retries", e.Op, e.Status)
}

// UpsertError is a rejected object create. The chunks already written for
// the same document stay persisted; recovery is re-ingesting the document.
type UpsertError struct {
	ID     string
	Status int
	Body   string
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("weaviate: create object %s: status %d: %s", e.ID, e.Status, e.Body)
}

// CompatibilityError means every known query shape was rejected by the
// store. It surfaces only when the fallback chain is exhausted.
type CompatibilityError struct {
	Attempts []string // one rejection message per shape, in attempt order
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("weaviate: no compatible query shape: %s", strings.Join(e.Attempts, "; "))
}
