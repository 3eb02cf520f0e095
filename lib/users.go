package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/models"
	"github.com/ticketguy/Keepshot/senders"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type users struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	senders senders.Registry
}

func (svc *users) OnboardUser(ctx context.Context, email string, password string) (*models.User, error) {
	user, confirmation, err := svc.createUserAndNotifier(email, password)
	if err != nil {
		return nil, err
	}
	if err = svc.sendVerificationEmail(ctx, email, confirmation.Nonce); err != nil {
		return nil, err
	}
	svc.log.Sugar().Infof("Created user %v (%s), confirmation nonce: %s", user.ID, email, confirmation.Nonce)
	return user, nil
}

func (svc *users) createUserAndNotifier(email string, password string) (*models.User, *models.NotifierConfirmation, error) {
	user := &models.User{
		Username: email,
		Password: password,
	}
	tx := svc.db.
		Clauses(clause.Returning{}).
		Create(user)
	if err := tx.Error; err != nil {
		return nil, nil, err
	}

	notif := &models.Notifier{Platform: "email", PlatformIdentifier: email, UserID: user.ID}
	tx = svc.db.
		Clauses(clause.Returning{}).
		Create(notif)
	if err := tx.Error; err != nil {
		return nil, nil, err
	}

	notifConfirm := &models.NotifierConfirmation{
		NotifierID: notif.ID,
		Nonce:      uuid.NewString(),
		Expiry:     time.Now().UTC().Add(3 * 24 * time.Hour),
	}
	tx = svc.db.Create(notifConfirm)
	if err := tx.Error; err != nil {
		return nil, nil, err
	}

	return user, notifConfirm, nil
}

func (svc *users) sendVerificationEmail(ctx context.Context, email, nonce string) error {
	url := fmt.Sprintf("%s/verify/%s", svc.cfg.ServerDNS, nonce)

	sender, ok := svc.senders["email"]
	if !ok {
		return errors.New("email sender is not configured")
	}

	notifier := &models.Notifier{Platform: "email", PlatformIdentifier: email}
	_, err := sender.SendVerification(ctx, notifier, url)
	return err
}

func (svc *users) VerifyNotifier(ctx context.Context, nonce string) (bool, error) {
	confirm := models.NotifierConfirmation{}
	tx := svc.db.Where("nonce = ?", nonce).First(&confirm)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if time.Now().UTC().After(confirm.Expiry) {
		return false, nil
	}

	tx = svc.db.Model(&models.Notifier{}).Where("id = ?", confirm.NotifierID).Update("verified", true)
	if err := tx.Error; err != nil {
		return false, err
	}

	return true, nil
}
