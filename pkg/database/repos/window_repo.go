package repos

import (
	"time"

	"github.com/tauraamui/edgeview/pkg/database/dbconn"
	"github.com/tauraamui/edgeview/pkg/database/models"
	"github.com/tauraamui/xerror"
)

type WindowRepository struct {
	DB dbconn.GormWrapper
}

func (r *WindowRepository) Create(window *models.FPSWindow) error {
	return r.DB.Create(window).Error()
}

// Recent returns up to limit of the device's latest windows, newest first.
func (r *WindowRepository) Recent(device string, limit int) ([]models.FPSWindow, error) {
	windows := []models.FPSWindow{}
	if err := r.DB.Where("device = ?", device).Order("closed_at desc").Limit(limit).Find(&windows).Error(); err != nil {
		return nil, xerror.Errorf("unable to fetch windows of %s: %w", device, err)
	}
	return windows, nil
}

// PruneOlderThan hard deletes windows closed before cutoff.
func (r *WindowRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	result := r.DB.Unscoped().Where("closed_at < ?", cutoff).Delete(&models.FPSWindow{})
	if err := result.Error(); err != nil {
		return 0, xerror.Errorf("unable to prune windows: %w", err)
	}
	return result.RowsAffected(), nil
}
