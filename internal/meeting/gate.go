package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"therapy-app-server/internal/models"
)

// GrantStatus is the authorization state of a doctor with the provider.
type GrantStatus string

const (
	GrantValid   GrantStatus = "valid"
	GrantExpired GrantStatus = "expired"
	GrantAbsent  GrantStatus = "absent"
)

// Gate tracks authorization grants, one per doctor per provider. The
// appointment store never touches grants; all grant lifecycle goes through
// here.
type Gate struct {
	db        *gorm.DB
	provider  string
	exchanger TokenExchanger
	now       func() time.Time
}

// NewGate creates an authorization gate for the named provider.
func NewGate(db *gorm.DB, provider string, exchanger TokenExchanger) *Gate {
	return &Gate{db: db, provider: provider, exchanger: exchanger, now: time.Now}
}

// Status reports whether the doctor holds a valid, non-expired grant.
func (g *Gate) Status(ctx context.Context, doctorID string) (GrantStatus, error) {
	var grant models.AuthorizationGrant
	err := g.db.WithContext(ctx).
		Where("doctor_id = ? AND provider = ?", doctorID, g.provider).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GrantAbsent, nil
	}
	if err != nil {
		return "", fmt.Errorf("load grant for doctor %s: %w", doctorID, err)
	}
	if grant.Expired(g.now()) {
		return GrantExpired, nil
	}
	return GrantValid, nil
}

// CompleteAuthorization exchanges the authorization code and stores the
// resulting grant, fully replacing any prior grant for the doctor/provider
// pair.
func (g *Gate) CompleteAuthorization(ctx context.Context, doctorID, code string) (*models.AuthorizationGrant, error) {
	res, err := g.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange: %w", err)
	}

	grant := models.AuthorizationGrant{
		DoctorID:     doctorID,
		Provider:     g.provider,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doctor_id = ? AND provider = ?", doctorID, g.provider).
			Delete(&models.AuthorizationGrant{}).Error; err != nil {
			return err
		}
		return tx.Create(&grant).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store grant for doctor %s: %w", doctorID, err)
	}
	return &grant, nil
}
