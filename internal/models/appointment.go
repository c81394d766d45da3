package models

import (
	"time"
)

// AppointmentStatus represents where an appointment is in its lifecycle.
type AppointmentStatus string

const (
	StatusRequested AppointmentStatus = "requested"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusDeclined  AppointmentStatus = "declined"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Terminal reports whether the status admits no further transitions.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// ConsultationType is the category of consultation being requested.
type ConsultationType string

const (
	TypeInitialConsultation ConsultationType = "initial_consultation"
	TypeFollowUp            ConsultationType = "follow_up"
	TypeMilestoneReview     ConsultationType = "milestone_review"
	TypeTherapySession      ConsultationType = "therapy_session"
)

// AppointmentMode is the delivery channel for the consultation.
type AppointmentMode string

const (
	ModeVideo    AppointmentMode = "video"
	ModeInPerson AppointmentMode = "in_person"
	ModePhone    AppointmentMode = "phone"
)

// Appointment represents a scheduled consultation between a patient and a doctor.
// The patient's stated reason and the doctor's post-consultation notes live in
// separate fields so an outcome note can never overwrite the original reason.
type Appointment struct {
	BaseModel
	PatientID string            `gorm:"size:36;index" json:"patientId"`
	DoctorID  string            `gorm:"size:36;index:idx_doctor_time" json:"doctorId"`
	StartTime time.Time         `gorm:"index:idx_doctor_time" json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Type      ConsultationType  `gorm:"size:30" json:"type"`
	Mode      AppointmentMode   `gorm:"size:20;default:'video'" json:"mode"`
	Status    AppointmentStatus `gorm:"size:20;default:'requested'" json:"status"`

	PatientReason  string `gorm:"size:500" json:"patientReason"`
	ClinicianNotes string `gorm:"type:text" json:"clinicianNotes,omitempty"`
	DeclineReason  string `gorm:"size:500" json:"declineReason,omitempty"`

	// CustomSlot marks a clinician-approved time outside the declared
	// availability windows. Slot ordering is still enforced.
	CustomSlot bool `gorm:"default:false" json:"customSlot"`

	// Meeting metadata, set at most once by the provisioner.
	MeetingID          string     `gorm:"size:100" json:"meetingId,omitempty"`
	MeetingLink        string     `gorm:"size:500" json:"meetingLink,omitempty"`
	MeetingAccessCode  string     `gorm:"size:100" json:"meetingAccessCode,omitempty"`
	MeetingGeneratedAt *time.Time `json:"meetingGeneratedAt,omitempty"`

	// First-join timestamps per participant role.
	DoctorJoinedAt  *time.Time `json:"doctorJoinedAt,omitempty"`
	PatientJoinedAt *time.Time `json:"patientJoinedAt,omitempty"`

	// Relations
	Patient User `gorm:"foreignKey:PatientID" json:"-"`
	Doctor  User `gorm:"foreignKey:DoctorID" json:"-"`
}

// MeetingProvisioned reports whether a meeting room has been attached.
func (a *Appointment) MeetingProvisioned() bool {
	return a.MeetingID != ""
}

// JoinedAt returns the recorded first-join time for the given role, if any.
func (a *Appointment) JoinedAt(role Role) *time.Time {
	if role == RoleDoctor {
		return a.DoctorJoinedAt
	}
	return a.PatientJoinedAt
}
