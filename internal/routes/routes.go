package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"therapy-app-server/internal/config"
	"therapy-app-server/internal/handlers"
	"therapy-app-server/internal/meeting"
	"therapy-app-server/internal/middleware"
	"therapy-app-server/internal/models"
	"therapy-app-server/internal/notifier"
	"therapy-app-server/internal/scheduling"
)

// SetupRoutes wires the appointment engine and configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, log zerolog.Logger) {
	// Assemble the engine.
	events := notifier.Fanout{
		notifier.NewLog(log),
		notifier.NewStore(db),
	}
	store := scheduling.NewStore(scheduling.Config{
		DB:           db,
		Events:       events,
		CancelWindow: time.Duration(cfg.Scheduling.CancelWindowHours) * time.Hour,
		Logger:       log,
	})

	provider := meeting.NewProviderClient(cfg.Meeting, db)
	gate := meeting.NewGate(db, cfg.Meeting.Provider, provider)
	pending := meeting.NewPendingStore(
		time.Duration(cfg.Scheduling.PendingAuthTTLMinutes)*time.Minute,
		time.Duration(cfg.Scheduling.AuthCooldownSeconds)*time.Second,
	)
	pending.StartCleanup(context.Background(), 5*time.Minute)
	provisioner := meeting.NewProvisioner(meeting.ProvisionerConfig{
		DB:      db,
		Gate:    gate,
		Rooms:   provider,
		Pending: pending,
		AuthURL: provider.AuthorizationURL,
		Events:  events,
		Logger:  log,
	})
	joinGate := meeting.NewJoinGate(db, time.Duration(cfg.Scheduling.JoinLeadMinutes)*time.Minute)

	// Initialize handlers.
	authHandler := handlers.NewAuthHandler(db, cfg)
	userHandler := handlers.NewUserHandler(db)
	availabilityHandler := handlers.NewAvailabilityHandler(db)
	appointmentHandler := handlers.NewAppointmentHandler(store)
	meetingHandler := handlers.NewMeetingHandler(store, provisioner, joinGate)
	notificationHandler := handlers.NewNotificationHandler(db)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}

		// The meeting provider redirects here after the doctor authorizes;
		// the resume token in `state` identifies the pending attempt.
		public.GET("/meetings/auth/callback", meetingHandler.AuthorizationCallback)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("/doctors", userHandler.GetDoctors)
		}

		// Availability profile: doctors declare, everyone reads.
		private.PUT("/availability", middleware.RoleAuthMiddleware(models.RoleDoctor), availabilityHandler.SetAvailability)
		private.GET("/doctors/:id/availability", availabilityHandler.GetAvailability)

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.POST("", appointmentHandler.RequestAppointment)
			appointmentRoutes.GET("", appointmentHandler.ListAppointments)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointment)

			// Lifecycle transitions. Authorization is per-appointment and
			// handled inside the handlers.
			appointmentRoutes.POST("/:id/accept", appointmentHandler.AcceptAppointment)
			appointmentRoutes.POST("/:id/decline", appointmentHandler.DeclineAppointment)
			appointmentRoutes.POST("/:id/cancel", appointmentHandler.CancelAppointment)
			appointmentRoutes.POST("/:id/outcome", appointmentHandler.RecordOutcome)

			// Meeting provisioning and join gate.
			appointmentRoutes.POST("/:id/meeting", meetingHandler.ProvisionMeeting)
			appointmentRoutes.GET("/:id/join", meetingHandler.CanJoin)
			appointmentRoutes.POST("/:id/join", meetingHandler.JoinMeeting)
		}

		notificationRoutes := private.Group("/notifications")
		{
			notificationRoutes.GET("", notificationHandler.ListNotifications)
			notificationRoutes.PATCH("/:id/read", notificationHandler.MarkNotificationRead)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
