package applications

import (
	"fmt"

	"github.com/gradpush/extrapoints/internal/fieldmap"
	"github.com/gradpush/extrapoints/internal/models"
)

// overlay copies every field set in patch over base. Unset fields in
// patch keep base's value, so an update cannot clear a field.
func overlay(base, patch models.Application) (models.Application, error) {
	baseRecord, err := fieldmap.Encode(base)
	if err != nil {
		return base, err
	}
	patchRecord, err := fieldmap.Encode(patch)
	if err != nil {
		return base, err
	}

	for key, value := range patchRecord {
		if key == "id" {
			continue
		}
		baseRecord[key] = value
	}

	var merged models.Application
	if err := fieldmap.Decode(baseRecord, &merged); err != nil {
		return base, fmt.Errorf("failed to merge application: %w", err)
	}
	merged.ID = base.ID
	return merged, nil
}

// writable strips the fields only the backend may set. finalScore and the
// review fields change through review; id and timestamps are server owned.
func writable(app models.Application) models.Application {
	app.ID = ""
	app.Status = ""
	app.FinalScore = nil
	app.ReviewComment = ""
	app.ReviewedAt = ""
	app.ReviewedBy = ""
	app.AppliedAt = ""
	app.CreatedAt = ""
	app.UpdatedAt = ""
	return app
}
