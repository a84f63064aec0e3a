package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/orghub/models"
)

// Membership manages event attendance. The member rows and members_count change
// together in one transaction, and the capacity check is part of the update itself.
type Membership struct {
	db *gorm.DB
}

// NewMembership creates a Membership manager.
func NewMembership(db *gorm.DB) *Membership {
	return &Membership{db: db}
}

// Join adds accountID to the event of postID and returns the new member count.
func (m *Membership) Join(ctx context.Context, postID, accountID string) (int, error) {
	var count int
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := loadEvent(tx, postID)
		if err != nil {
			return err
		}
		if event.MembersCount >= event.Capacity {
			return Invalid("Event has already reached its capacity")
		}
		joined, err := isMember(tx, postID, accountID)
		if err != nil {
			return err
		}
		if joined {
			return Invalid("You have already joined the event")
		}

		res := tx.Model(&models.Event{}).
			Where("post_id = ? AND members_count < capacity", postID).
			UpdateColumn("members_count", gorm.Expr("members_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Invalid("Event has already reached its capacity")
		}
		if err := tx.Create(&models.EventMember{PostID: postID, AccountID: accountID}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return Invalid("You have already joined the event")
			}
			return err
		}
		count, err = membersCount(tx, postID)
		return err
	})
	return count, err
}

// Leave removes accountID from the event of postID and returns the new member count.
func (m *Membership) Leave(ctx context.Context, postID, accountID string) (int, error) {
	var count int
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadEvent(tx, postID); err != nil {
			return err
		}
		res := tx.Where("post_id = ? AND account_id = ?", postID, accountID).Delete(&models.EventMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Invalid("You need to join to leave")
		}
		err := tx.Model(&models.Event{}).
			Where("post_id = ? AND members_count > 0", postID).
			UpdateColumn("members_count", gorm.Expr("members_count - 1")).Error
		if err != nil {
			return err
		}
		count, err = membersCount(tx, postID)
		return err
	})
	return count, err
}

// IsMember reports whether accountID joined the event of postID.
func (m *Membership) IsMember(ctx context.Context, postID, accountID string) (bool, error) {
	return isMember(m.db.WithContext(ctx), postID, accountID)
}

func loadEvent(tx *gorm.DB, postID string) (*models.Event, error) {
	var post models.Post
	if err := tx.Select("id", "kind").Where("id = ?", postID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("No such post")
		}
		return nil, err
	}
	var event models.Event
	err := tx.Where("post_id = ?", postID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || post.Kind != models.PostKindEvent {
		return nil, Invalid("Post have no active events")
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func isMember(db *gorm.DB, postID, accountID string) (bool, error) {
	var n int64
	err := db.Model(&models.EventMember{}).Where("post_id = ? AND account_id = ?", postID, accountID).Count(&n).Error
	return n > 0, err
}

func membersCount(db *gorm.DB, postID string) (int, error) {
	var event models.Event
	if err := db.Select("members_count").Where("post_id = ?", postID).First(&event).Error; err != nil {
		return 0, err
	}
	return event.MembersCount, nil
}
