package models

// NotificationKind identifies the appointment lifecycle event a notification
// was emitted for.
type NotificationKind string

const (
	NotifyRequested    NotificationKind = "appointment_requested"
	NotifyConfirmed    NotificationKind = "appointment_confirmed"
	NotifyDeclined     NotificationKind = "appointment_declined"
	NotifyCancelled    NotificationKind = "appointment_cancelled"
	NotifyMeetingReady NotificationKind = "meeting_ready"
)

// Notification is a persisted lifecycle event for the UI's notification feed.
type Notification struct {
	BaseModel
	RecipientID   string           `gorm:"size:36;index" json:"recipientId"`
	AppointmentID string           `gorm:"size:36;index" json:"appointmentId"`
	Kind          NotificationKind `gorm:"size:40" json:"kind"`
	Message       string           `gorm:"size:500" json:"message"`
	IsRead        bool             `gorm:"default:false" json:"isRead"`

	Recipient   User        `gorm:"foreignKey:RecipientID" json:"-"`
	Appointment Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
}
