package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"therapy-app-server/internal/middleware"
	"therapy-app-server/internal/models"
	"therapy-app-server/internal/scheduling"
	"therapy-app-server/internal/utils"
)

// AppointmentHandler exposes the appointment lifecycle engine over HTTP.
type AppointmentHandler struct {
	Store *scheduling.Store
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(store *scheduling.Store) *AppointmentHandler {
	return &AppointmentHandler{Store: store}
}

// RequestAppointmentRequest represents the request body for a new appointment request.
type RequestAppointmentRequest struct {
	DoctorID   string    `json:"doctorId" binding:"required,uuid"`
	PatientID  string    `json:"patientId" binding:"required,uuid"`
	Start      time.Time `json:"start" binding:"required"`
	End        time.Time `json:"end" binding:"required"`
	Type       string    `json:"type" binding:"required,oneof=initial_consultation follow_up milestone_review therapy_session"`
	Mode       string    `json:"mode" binding:"omitempty,oneof=video in_person phone"`
	Reason     string    `json:"reason" binding:"required"`
	CustomSlot bool      `json:"customSlot"`
}

// RequestAppointment handles a patient's appointment request.
func (h *AppointmentHandler) RequestAppointment(c *gin.Context) {
	var req RequestAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	role, _ := middleware.GetUserRoleFromContext(c)

	if role == models.RolePatient && userID != req.PatientID {
		utils.Forbidden(c, "Patients can only request appointments for themselves.")
		return
	}
	// Only the clinician side may approve a custom time outside the
	// declared availability windows.
	if req.CustomSlot && role == models.RolePatient {
		utils.Forbidden(c, "Only doctors can approve a custom time slot.")
		return
	}

	mode := models.AppointmentMode(req.Mode)
	if mode == "" {
		mode = models.ModeVideo
	}

	appt, err := h.Store.Request(c.Request.Context(), scheduling.RequestParams{
		PatientID:  req.PatientID,
		DoctorID:   req.DoctorID,
		Slot:       scheduling.Slot{Start: req.Start, End: req.End},
		Type:       models.ConsultationType(req.Type),
		Mode:       mode,
		Reason:     req.Reason,
		CustomSlot: req.CustomSlot,
	})
	if err != nil {
		respondSchedulingError(c, err)
		return
	}

	utils.Created(c, "Appointment requested", appt)
}

// AcceptAppointment confirms a requested appointment. Doctor or admin only;
// the slot conflict check is re-run against currently confirmed appointments.
func (h *AppointmentHandler) AcceptAppointment(c *gin.Context) {
	appt, ok := h.authorizeDoctorAction(c)
	if !ok {
		return
	}

	updated, err := h.Store.Accept(c.Request.Context(), appt.ID)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment confirmed", updated)
}

// DeclineAppointmentRequest represents the request body for declining.
type DeclineAppointmentRequest struct {
	Reason string `json:"reason"`
}

// DeclineAppointment declines a requested appointment.
func (h *AppointmentHandler) DeclineAppointment(c *gin.Context) {
	appt, ok := h.authorizeDoctorAction(c)
	if !ok {
		return
	}

	var req DeclineAppointmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}

	updated, err := h.Store.Decline(c.Request.Context(), appt.ID, req.Reason)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment declined", updated)
}

// CancelAppointment cancels an appointment on behalf of an involved party or
// an administrator. Inside the cancellation window the request is rejected,
// not silently ignored.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	appt, role, ok := h.authorizeInvolvedParty(c)
	if !ok {
		return
	}

	updated, err := h.Store.Cancel(c.Request.Context(), appt.ID, role)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment cancelled", updated)
}

// OutcomeRequest represents the request body for recording an outcome.
type OutcomeRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=completed no_show"`
	Notes   string `json:"notes"`
}

// RecordOutcome marks an elapsed confirmed appointment Completed or NoShow.
func (h *AppointmentHandler) RecordOutcome(c *gin.Context) {
	appt, ok := h.authorizeDoctorAction(c)
	if !ok {
		return
	}

	var req OutcomeRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	updated, err := h.Store.MarkOutcome(c.Request.Context(), appt.ID, models.AppointmentStatus(req.Outcome), req.Notes)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	utils.Success(c, "Appointment outcome recorded", updated)
}

// GetAppointment fetches a single appointment, visible to involved parties
// and admins.
func (h *AppointmentHandler) GetAppointment(c *gin.Context) {
	appt, _, ok := h.authorizeInvolvedParty(c)
	if !ok {
		return
	}
	utils.Success(c, "Appointment fetched", appt)
}

// ListAppointments returns the caller's appointments filtered by view
// (all/today/upcoming/history/pending).
func (h *AppointmentHandler) ListAppointments(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	role, _ := middleware.GetUserRoleFromContext(c)

	view := scheduling.View(c.DefaultQuery("view", string(scheduling.ViewAll)))
	appointments, err := h.Store.ListForUser(c.Request.Context(), userID, role, view)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	utils.Success(c, "Appointments fetched", appointments)
}

// authorizeDoctorAction loads the appointment and checks that the caller is
// its doctor or an admin.
func (h *AppointmentHandler) authorizeDoctorAction(c *gin.Context) (*models.Appointment, bool) {
	appt, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return nil, false
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	if role != models.RoleAdmin && !(role == models.RoleDoctor && userID == appt.DoctorID) {
		utils.Forbidden(c, "Only the appointment's doctor can perform this action.")
		return nil, false
	}
	return appt, true
}

// authorizeInvolvedParty loads the appointment and checks that the caller is
// the patient, the doctor, or an admin. Returns the caller's role.
func (h *AppointmentHandler) authorizeInvolvedParty(c *gin.Context) (*models.Appointment, models.Role, bool) {
	appt, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return nil, "", false
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	involved := userID == appt.PatientID || userID == appt.DoctorID
	if role != models.RoleAdmin && !involved {
		utils.Forbidden(c, "You are not involved in this appointment.")
		return nil, "", false
	}
	return appt, role, true
}

// respondSchedulingError maps engine errors onto distinct HTTP responses.
// These are expected business outcomes, not system failures.
func respondSchedulingError(c *gin.Context, err error) {
	var conflict *scheduling.SlotConflictError
	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		utils.NotFound(c, "Appointment not found")
	case errors.Is(err, scheduling.ErrInvalidTimeRange):
		utils.UnprocessableEntity(c, "The slot's end time must be after its start time.")
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		utils.UnprocessableEntity(c, "The requested slot is outside the doctor's availability.")
	case errors.As(err, &conflict):
		utils.Conflict(c, "The slot overlaps a confirmed appointment ("+conflict.ConflictingID+").")
	case errors.Is(err, scheduling.ErrTooLateToCancel):
		utils.Conflict(c, "Appointments can no longer be cancelled this close to their start time.")
	case errors.Is(err, scheduling.ErrInvalidTransition):
		utils.Conflict(c, err.Error())
	default:
		utils.InternalServerError(c, err.Error())
	}
}
