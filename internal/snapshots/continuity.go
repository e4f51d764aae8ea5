package snapshots

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type previousState struct {
	status string
	days   int
}

// loadPreviousStates returns unit id -> recorded state from the newest header of the project dated
// strictly before the given day. Same-day headers are excluded so a re-run never counts itself.
func loadPreviousStates(tx *gorm.DB, projectID string, before time.Time) (map[string]previousState, error) {
	var prior Snapshot
	err := tx.Where("proyecto_id = ? AND fecha < ?", projectID, before).
		Order("fecha DESC").
		Order("created_at DESC").
		Take(&prior).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]previousState{}, nil
	}
	if err != nil {
		return nil, err
	}

	var details []SnapshotDetail
	if err := tx.Where("snapshot_id = ?", prior.ID).Find(&details).Error; err != nil {
		return nil, err
	}

	states := make(map[string]previousState, len(details))
	for _, detail := range details {
		states[detail.UnidadID] = previousState{status: detail.Estado, days: detail.DiasEnEstado}
	}
	return states, nil
}

// nextContinuity computes the previous status and the days-in-state counter for a unit.
// The counter grows by one only when the unit was recorded before with the exact same status.
func nextContinuity(previous map[string]previousState, unitID, status string) (*string, int) {
	state, found := previous[unitID]
	if !found {
		return nil, 1
	}
	recorded := state.status
	if recorded == status {
		return &recorded, state.days + 1
	}
	return &recorded, 1
}
