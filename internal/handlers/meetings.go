package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"therapy-app-server/internal/meeting"
	"therapy-app-server/internal/middleware"
	"therapy-app-server/internal/models"
	"therapy-app-server/internal/scheduling"
	"therapy-app-server/internal/utils"
)

// MeetingHandler exposes meeting provisioning and the join gate over HTTP.
type MeetingHandler struct {
	Store       *scheduling.Store
	Provisioner *meeting.Provisioner
	JoinGate    *meeting.JoinGate
}

// NewMeetingHandler creates a new MeetingHandler.
func NewMeetingHandler(store *scheduling.Store, provisioner *meeting.Provisioner, joinGate *meeting.JoinGate) *MeetingHandler {
	return &MeetingHandler{Store: store, Provisioner: provisioner, JoinGate: joinGate}
}

// needsAuthorizationResponse is returned when the doctor must first complete
// the provider's authorization flow. It is a control-flow outcome, not an
// error.
type needsAuthorizationResponse struct {
	Status           string `json:"status"`
	AuthorizationURL string `json:"authorizationUrl"`
	ResumeToken      string `json:"resumeToken"`
}

// ProvisionMeeting creates the meeting room for a confirmed appointment.
// Either involved party may trigger it; repeated calls return the same
// metadata.
func (h *MeetingHandler) ProvisionMeeting(c *gin.Context) {
	appt, ok := h.authorize(c)
	if !ok {
		return
	}

	info, err := h.Provisioner.Provision(c.Request.Context(), appt.ID)
	if err != nil {
		var needsAuth *meeting.NeedsAuthorization
		switch {
		case errors.As(err, &needsAuth):
			utils.Success(c, "Doctor authorization required before provisioning", needsAuthorizationResponse{
				Status:           "needs_authorization",
				AuthorizationURL: needsAuth.AuthorizationURL,
				ResumeToken:      needsAuth.ResumeToken,
			})
		case errors.Is(err, meeting.ErrNotConfirmed):
			utils.Conflict(c, "Meetings can only be provisioned for confirmed appointments.")
		case errors.Is(err, meeting.ErrProvisioningFailed):
			utils.Error(c, http.StatusBadGateway, "The meeting provider is unavailable; please retry.")
		case errors.Is(err, scheduling.ErrNotFound):
			utils.NotFound(c, "Appointment not found")
		default:
			utils.InternalServerError(c, err.Error())
		}
		return
	}

	utils.Success(c, "Meeting provisioned", info)
}

// CanJoin reports whether the caller may join the appointment's meeting now.
func (h *MeetingHandler) CanJoin(c *gin.Context) {
	appt, ok := h.authorize(c)
	if !ok {
		return
	}

	decision, err := h.JoinGate.CanJoin(c.Request.Context(), appt.ID)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			utils.NotFound(c, "Appointment not found")
			return
		}
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.Success(c, "Join window computed", decision)
}

// JoinMeeting records the caller's first join. Subsequent joins for the same
// role are no-ops.
func (h *MeetingHandler) JoinMeeting(c *gin.Context) {
	appt, ok := h.authorize(c)
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	if role == models.RoleAdmin {
		utils.Forbidden(c, "Only the appointment's participants can join the meeting.")
		return
	}
	// The role recorded is derived from the participant's side of the
	// appointment, not trusted from the request body.
	joinRole := models.RolePatient
	if userID == appt.DoctorID {
		joinRole = models.RoleDoctor
	}

	updated, err := h.JoinGate.RecordJoin(c.Request.Context(), appt.ID, joinRole)
	if err != nil {
		switch {
		case errors.Is(err, meeting.ErrNotJoinable):
			utils.Conflict(c, "The appointment is not joinable right now.")
		case errors.Is(err, scheduling.ErrNotFound):
			utils.NotFound(c, "Appointment not found")
		default:
			utils.InternalServerError(c, err.Error())
		}
		return
	}
	utils.Success(c, "Join recorded", gin.H{
		"appointmentId": updated.ID,
		"role":          joinRole,
		"joinedAt":      updated.JoinedAt(joinRole),
		"meetingLink":   updated.MeetingLink,
	})
}

// AuthorizationCallback completes the provider's OAuth round trip and resumes
// the pending provisioning attempt. The provider may fire the redirect more
// than once; duplicates inside the cooldown window are acknowledged without
// re-provisioning.
func (h *MeetingHandler) AuthorizationCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		utils.BadRequest(c, "Missing code or state parameter")
		return
	}

	info, err := h.Provisioner.ResumeAfterAuthorization(c.Request.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, meeting.ErrDuplicateCompletion):
			utils.Success(c, "Authorization already completed", nil)
		case errors.Is(err, meeting.ErrUnknownAttempt):
			utils.NotFound(c, "Unknown or expired authorization attempt")
		case errors.Is(err, meeting.ErrNotConfirmed):
			utils.Conflict(c, "The appointment is no longer confirmed; the meeting was not provisioned.")
		case errors.Is(err, meeting.ErrProvisioningFailed):
			utils.Error(c, http.StatusBadGateway, "Authorization succeeded but the meeting provider is unavailable; please retry provisioning.")
		default:
			utils.InternalServerError(c, err.Error())
		}
		return
	}
	utils.Success(c, "Authorization completed and meeting provisioned", info)
}

// authorize loads the appointment and checks that the caller is an involved
// party or an admin.
func (h *MeetingHandler) authorize(c *gin.Context) (*models.Appointment, bool) {
	appt, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			utils.NotFound(c, "Appointment not found")
		} else {
			utils.InternalServerError(c, err.Error())
		}
		return nil, false
	}

	userID, _ := middleware.GetUserIDFromContext(c)
	role, _ := middleware.GetUserRoleFromContext(c)
	if role != models.RoleAdmin && userID != appt.PatientID && userID != appt.DoctorID {
		utils.Forbidden(c, "You are not involved in this appointment.")
		return nil, false
	}
	return appt, true
}
