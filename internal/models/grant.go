package models

import (
	"time"
)

// AuthorizationGrant is a stored credential allowing meeting provisioning on
// behalf of a doctor. One grant per doctor per provider; a refresh supersedes
// the previous grant rather than appending to it.
type AuthorizationGrant struct {
	BaseModel
	DoctorID     string    `gorm:"size:36;uniqueIndex:idx_doctor_provider" json:"doctorId"`
	Provider     string    `gorm:"size:50;uniqueIndex:idx_doctor_provider" json:"provider"`
	AccessToken  string    `gorm:"size:2000" json:"-"`
	RefreshToken string    `gorm:"size:2000" json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`

	Doctor User `gorm:"foreignKey:DoctorID" json:"-"`
}

// Expired reports whether the grant's access token has expired at the given time.
func (g *AuthorizationGrant) Expired(now time.Time) bool {
	return !g.ExpiresAt.After(now)
}
