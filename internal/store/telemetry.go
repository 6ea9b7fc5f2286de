package store

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/c2link/internal/types"
	"gorm.io/gorm"
)

func (s *Store) Insert(ctx context.Context, snap *types.Snapshot) error {
	err := s.tx(ctx).Create(rowFromSnapshot(snap)).Error
	return errors.Annotatef(err, "telemetry insert vehicle=%s", snap.VehicleID)
}

// Latest returns errors.NotFound when vehicle has no telemetry.
func (s *Store) Latest(ctx context.Context, vehicleID string) (*types.Snapshot, error) {
	var r telemetryRow
	err := s.tx(ctx).Where("vehicle_id = ?", vehicleID).Order("time_ms DESC").Order("id DESC").First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NotFoundf("telemetry vehicle=%s", vehicleID)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "telemetry latest vehicle=%s", vehicleID)
	}
	snap := r.snapshot()
	return &snap, nil
}

// Range returns samples with from <= time < to in time order.
func (s *Store) Range(ctx context.Context, vehicleID string, from, to time.Time) ([]types.Snapshot, error) {
	var rows []telemetryRow
	err := s.tx(ctx).
		Where("vehicle_id = ? AND time_ms >= ? AND time_ms < ?", vehicleID, unixMs(from), unixMs(to)).
		Order("time_ms").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Annotatef(err, "telemetry range vehicle=%s", vehicleID)
	}
	snaps := make([]types.Snapshot, len(rows))
	for i := range rows {
		snaps[i] = rows[i].snapshot()
	}
	return snaps, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := s.tx(ctx).Where("time_ms < ?", unixMs(before)).Delete(&telemetryRow{})
	return result.RowsAffected, errors.Annotate(result.Error, "telemetry cleanup")
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.tx(ctx).Model(&telemetryRow{}).Count(&n).Error
	return n, errors.Annotate(err, "telemetry count")
}
