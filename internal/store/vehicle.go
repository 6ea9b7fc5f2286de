package store

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/c2link/internal/types"
	"gorm.io/gorm"
)

func (s *Store) GetByID(ctx context.Context, id string) (*types.Vehicle, error) {
	var r vehicleRow
	err := s.tx(ctx).Where("id = ?", id).First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NotFoundf("vehicle id=%s", id)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "vehicle get id=%s", id)
	}
	return r.vehicle(), nil
}

func (s *Store) Upsert(ctx context.Context, v *types.Vehicle) error {
	if v.ID == "" {
		return errors.NotValidf("vehicle id empty")
	}
	err := s.tx(ctx).Save(rowFromVehicle(v)).Error
	return errors.Annotatef(err, "vehicle upsert id=%s", v.ID)
}

func (s *Store) List(ctx context.Context) ([]*types.Vehicle, error) {
	var rows []vehicleRow
	if err := s.tx(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Annotate(err, "vehicle list")
	}
	vs := make([]*types.Vehicle, len(rows))
	for i := range rows {
		vs[i] = rows[i].vehicle()
	}
	return vs, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.tx(ctx).Where("id = ?", id).Delete(&vehicleRow{})
	if result.Error != nil {
		return errors.Annotatef(result.Error, "vehicle delete id=%s", id)
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundf("vehicle id=%s", id)
	}
	return nil
}
