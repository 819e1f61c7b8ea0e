package prayers

import (
	"context"

	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, prayer *model.Prayer, activity *model.PrayerActivity) error
	Get(ctx context.Context, prayerID uint) (*model.Prayer, error)
	List(ctx context.Context, status string) ([]*model.Prayer, error)
	// RecordActivity appends the activity row and applies updates to the
	// prayer in one transaction.
	RecordActivity(ctx context.Context, prayerID uint, activity *model.PrayerActivity, updates map[string]interface{}) error
	ListActivity(ctx context.Context, prayerID uint) ([]*model.PrayerActivity, error)
}

type prayerRepository struct {
	db *gorm.DB
}

func (r *prayerRepository) Create(ctx context.Context, prayer *model.Prayer, activity *model.PrayerActivity) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(prayer).Error; err != nil {
			return err
		}
		activity.PrayerID = prayer.ID
		return tx.Create(activity).Error
	})
}

func (r *prayerRepository) Get(ctx context.Context, prayerID uint) (*model.Prayer, error) {
	var prayer model.Prayer
	if err := r.db.WithContext(ctx).First(&prayer, "id = ?", prayerID).Error; err != nil {
		return nil, err
	}
	return &prayer, nil
}

func (r *prayerRepository) List(ctx context.Context, status string) ([]*model.Prayer, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var list []*model.Prayer
	err := query.Find(&list).Error
	return list, err
}

func (r *prayerRepository) RecordActivity(ctx context.Context, prayerID uint, activity *model.PrayerActivity, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			ret := tx.Model(&model.Prayer{}).Where("id = ?", prayerID).Updates(updates)
			if ret.Error != nil {
				return ret.Error
			}
			if ret.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return tx.Create(activity).Error
	})
}

func (r *prayerRepository) ListActivity(ctx context.Context, prayerID uint) ([]*model.PrayerActivity, error) {
	var activity []*model.PrayerActivity
	err := r.db.WithContext(ctx).
		Where("prayer_id = ?", prayerID).
		Order("created_at").
		Find(&activity).Error
	return activity, err
}

func NewRepository(db *gorm.DB) Repository {
	return &prayerRepository{db}
}
