package lib

import (
	"context"
	"errors"

	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

type notifications struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

type NotificationFilter struct {
	Read *bool
	Kind models.NotificationKind
}

func (svc *notifications) ListNotifications(ctx context.Context, userID uint, page, pageSize int, filter NotificationFilter) (models.Notifications, int64, error) {
	query := svc.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if filter.Read != nil {
		query = query.Where("read = ?", *filter.Read)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items models.Notifications
	tx := query.
		Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items)
	if err := tx.Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (svc *notifications) GetNotification(ctx context.Context, userID, notificationID uint) (*models.Notification, error) {
	n := &models.Notification{}
	tx := svc.db.
		Where("user_id = ?", userID).
		Where("id = ?", notificationID).
		First(n)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	} else if err != nil {
		return nil, err
	}
	return n, nil
}

// MarkNotificationRead flips the read flag, the only mutable field on a
// notification.
func (svc *notifications) MarkNotificationRead(ctx context.Context, userID, notificationID uint, read bool) (*models.Notification, error) {
	n, err := svc.GetNotification(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if err := svc.db.Model(n).Update("read", read).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (svc *notifications) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	tx := svc.db.Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Where("read = ?", false).
		Count(&count)
	return count, tx.Error
}
