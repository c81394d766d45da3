package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"therapy-app-server/internal/middleware"
	"therapy-app-server/internal/models"
	"therapy-app-server/internal/utils"
)

// AvailabilityHandler manages a doctor's declared availability profile, the
// read-only input of the slot validator.
type AvailabilityHandler struct {
	DB *gorm.DB
}

// NewAvailabilityHandler creates a new AvailabilityHandler.
func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
	return &AvailabilityHandler{DB: db}
}

// AvailabilityWindowRequest is one recurring window in the submitted profile.
type AvailabilityWindowRequest struct {
	Weekday   int    `json:"weekday" binding:"min=0,max=6"`
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
}

// SetAvailabilityRequest represents the request body for replacing the
// caller's availability profile.
type SetAvailabilityRequest struct {
	Windows []AvailabilityWindowRequest `json:"windows" binding:"required,dive"`
}

// SetAvailability replaces the doctor's availability windows.
func (h *AvailabilityHandler) SetAvailability(c *gin.Context) {
	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req SetAvailabilityRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	windows := make([]models.AvailabilityWindow, 0, len(req.Windows))
	for _, w := range req.Windows {
		start, err := time.Parse("15:04", w.StartTime)
		if err != nil {
			utils.BadRequest(c, "Invalid start time "+w.StartTime+"; expected HH:MM")
			return
		}
		end, err := time.Parse("15:04", w.EndTime)
		if err != nil {
			utils.BadRequest(c, "Invalid end time "+w.EndTime+"; expected HH:MM")
			return
		}
		if !start.Before(end) {
			utils.UnprocessableEntity(c, "Window end must be after its start")
			return
		}
		windows = append(windows, models.AvailabilityWindow{
			DoctorID:  doctorID,
			Weekday:   w.Weekday,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
		})
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doctor_id = ?", doctorID).Delete(&models.AvailabilityWindow{}).Error; err != nil {
			return err
		}
		if len(windows) == 0 {
			return nil
		}
		return tx.Create(&windows).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to update availability: "+err.Error())
		return
	}

	utils.Success(c, "Availability updated", windows)
}

// GetAvailability returns a doctor's declared availability windows.
func (h *AvailabilityHandler) GetAvailability(c *gin.Context) {
	doctorID := c.Param("id")

	var windows []models.AvailabilityWindow
	if err := h.DB.Where("doctor_id = ?", doctorID).
		Order("weekday asc, start_time asc").
		Find(&windows).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch availability: "+err.Error())
		return
	}

	utils.Success(c, "Availability fetched", windows)
}
