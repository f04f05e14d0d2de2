package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/telegem/telegem/internal/models"
)

// scanTurns scans ordered turn rows (role, parts JSON) into models.Turn values.
func scanTurns(rows *sql.Rows) ([]models.Turn, error) {
	var turns []models.Turn
	for rows.Next() {
		var role, partsJSON string
		if err := rows.Scan(&role, &partsJSON); err != nil {
			return nil, fmt.Errorf("scan turn failed: %w", err)
		}
		var parts []models.Part
		if err := json.Unmarshal([]byte(partsJSON), &parts); err != nil {
			return nil, fmt.Errorf("unmarshal turn parts failed: %w", err)
		}
		turns = append(turns, models.Turn{Role: models.Role(role), Parts: parts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows failed: %w", err)
	}
	return turns, nil
}
