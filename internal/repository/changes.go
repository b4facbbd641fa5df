package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-eval-api/internal/models"
)

// trackField assigns next to *current and records the change when they differ.
func trackField[T comparable](changes models.FieldChanges, column string, current *T, next T) {
	if *current == next {
		return
	}
	changes[column] = models.FieldChange{Old: *current, New: next}
	*current = next
}

func trackTime(changes models.FieldChanges, column string, current *time.Time, next time.Time) {
	if current.Equal(next) {
		return
	}
	changes[column] = models.FieldChange{Old: *current, New: next}
	*current = next
}

// replaceAssociations makes the members of owner in a join table exactly memberIDs.
// Rows are only rewritten when the stored set differs; the return value reports that.
func replaceAssociations(ctx context.Context, exec sqlx.ExtContext, table, ownerColumn, memberColumn, ownerID string, memberIDs []string) (bool, error) {
	var existing []string
	selectQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, memberColumn, table, ownerColumn)
	if err := sqlx.SelectContext(ctx, exec, &existing, selectQuery, ownerID); err != nil {
		return false, fmt.Errorf("list %s: %w", table, err)
	}

	wanted := make(map[string]struct{}, len(memberIDs))
	ordered := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, seen := wanted[id]; seen {
			continue
		}
		wanted[id] = struct{}{}
		ordered = append(ordered, id)
	}
	if sameSet(existing, wanted) {
		return false, nil
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerColumn)
	if _, err := exec.ExecContext(ctx, deleteQuery, ownerID); err != nil {
		return false, fmt.Errorf("clear %s: %w", table, err)
	}
	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, table, ownerColumn, memberColumn)
	for _, id := range ordered {
		if _, err := exec.ExecContext(ctx, insertQuery, ownerID, id); err != nil {
			return false, fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return true, nil
}

func sameSet(existing []string, wanted map[string]struct{}) bool {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		if _, ok := wanted[id]; !ok {
			return false
		}
		seen[id] = struct{}{}
	}
	return len(seen) == len(wanted)
}
