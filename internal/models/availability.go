package models

// AvailabilityWindow is one recurring bookable window in a doctor's week,
// e.g. Monday 09:00-13:00. Times are clock times in "15:04" form; the set of
// windows for a doctor is their availability profile.
type AvailabilityWindow struct {
	BaseModel
	DoctorID  string `gorm:"size:36;index" json:"doctorId"`
	Weekday   int    `gorm:"not null" json:"weekday"` // time.Weekday: 0 = Sunday
	StartTime string `gorm:"size:5;not null" json:"startTime"`
	EndTime   string `gorm:"size:5;not null" json:"endTime"`

	Doctor User `gorm:"foreignKey:DoctorID" json:"-"`
}
