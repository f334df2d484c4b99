package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/arancormonk/dsd-neo-sub003/internal/event"
)

// RadioUnitRepository provides database operations for radio units.
type RadioUnitRepository struct {
	db *gorm.DB
}

func NewRadioUnitRepository(db *gorm.DB) *RadioUnitRepository {
	return &RadioUnitRepository{db: db}
}

// GetByRadioID finds a unit by its source ID.
func (r *RadioUnitRepository) GetByRadioID(radioID uint32) (*RadioUnit, error) {
	var unit RadioUnit
	if err := r.db.Where("radio_id = ?", radioID).First(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// AliasOf returns the imported alias for a source ID, or "" when the
// unit is unknown.
func (r *RadioUnitRepository) AliasOf(radioID uint32) string {
	unit, err := r.GetByRadioID(radioID)
	if err != nil {
		return ""
	}
	return unit.Alias
}

// Upsert creates or updates a single radio unit.
func (r *RadioUnitRepository) Upsert(unit *RadioUnit) error {
	if unit == nil {
		return fmt.Errorf("unit cannot be nil")
	}
	unit.Sanitize()
	if !unit.IsValid() {
		return fmt.Errorf("unit is not valid: radio_id=%d, alias=%q", unit.RadioID, unit.Alias)
	}
	unit.UpdatedAt = time.Now()
	return r.db.Save(unit).Error
}

// UpsertBatch imports multiple units in batched transactions.
func (r *RadioUnitRepository) UpsertBatch(units []RadioUnit) error {
	if len(units) == 0 {
		return nil
	}

	const batchSize = 1000
	for i := 0; i < len(units); i += batchSize {
		end := i + batchSize
		if end > len(units) {
			end = len(units)
		}

		valid := make([]RadioUnit, 0, end-i)
		for _, unit := range units[i:end] {
			unit.Sanitize()
			if unit.IsValid() {
				unit.UpdatedAt = time.Now()
				valid = append(valid, unit)
			}
		}
		if len(valid) == 0 {
			continue
		}

		err := r.db.Transaction(func(tx *gorm.DB) error {
			for _, unit := range valid {
				if err := tx.Save(&unit).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("batch upsert failed at batch starting at index %d: %w", i, err)
		}
	}
	return nil
}

// Count returns the total number of radio units.
func (r *RadioUnitRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&RadioUnit{}).Count(&count).Error
	return count, err
}

// CallEventRepository persists and queries call history rows.
type CallEventRepository struct {
	db *gorm.DB
}

func NewCallEventRepository(db *gorm.DB) *CallEventRepository {
	return &CallEventRepository{db: db}
}

// Insert mirrors one event ring record into the database.
func (r *CallEventRepository) Insert(rec event.Record) error {
	row := CallEventFrom(rec)
	return r.db.Create(&row).Error
}

// RecentByTG returns the newest events for a talkgroup, newest first.
func (r *CallEventRepository) RecentByTG(tg uint32, limit int) ([]CallEvent, error) {
	var rows []CallEvent
	err := r.db.Where("tg = ?", tg).
		Order("time DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Recent returns the newest events across all talkgroups.
func (r *CallEventRepository) Recent(limit int) ([]CallEvent, error) {
	var rows []CallEvent
	err := r.db.Order("time DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CountSince counts events stamped after the given time.
func (r *CallEventRepository) CountSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&CallEvent{}).Where("time > ?", since).Count(&count).Error
	return count, err
}

// PurgeBefore deletes history older than the given time and reports
// how many rows went away.
func (r *CallEventRepository) PurgeBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("time < ?", cutoff).Delete(&CallEvent{})
	return res.RowsAffected, res.Error
}
