package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
)

const orgCacheTTL = 10 * time.Minute

// Organisations reads organisation records and maintains their post counters.
type Organisations struct {
	db    *gorm.DB
	cache Cache
}

// NewOrganisations creates an Organisations lookup. cache may be nil.
func NewOrganisations(db *gorm.DB, cache Cache) *Organisations {
	return &Organisations{db: db, cache: cacheOrNop(cache)}
}

func orgCacheKey(id string) string {
	return "cache:org:" + id
}

// Approved returns the organisation when it exists and is approved.
func (o *Organisations) Approved(ctx context.Context, id string) (*models.Organisation, error) {
	var org models.Organisation
	if o.cache.GetJSON(ctx, orgCacheKey(id), &org) && org.Approved {
		return &org, nil
	}
	err := o.db.WithContext(ctx).Where("id = ? AND approved = ?", id, true).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("No such organisation")
	}
	if err != nil {
		return nil, err
	}
	o.cache.SetJSON(ctx, orgCacheKey(id), org, orgCacheTTL)
	return &org, nil
}

// RecountPosts stores the number of posts the organisation currently has.
func (o *Organisations) RecountPosts(tx *gorm.DB, id string) (int64, error) {
	var total int64
	if err := tx.Model(&models.Post{}).Where("organisation_id = ?", id).Count(&total).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.Organisation{}).Where("id = ?", id).Update("posts", total).Error; err != nil {
		return 0, err
	}
	o.cache.InvalidateByPrefix(tx.Statement.Context, orgCacheKey(id))
	return total, nil
}
