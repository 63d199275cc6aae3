// Package api assembles the HTTP router: public routes (/health, /auth/*)
// and session-protected routes (/api/v1/*).
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/api/handlers"
	apimiddleware "github.com/zime-ai/nucleus/internal/api/middleware"
	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	domainauth "github.com/zime-ai/nucleus/internal/domain/auth"
	"github.com/zime-ai/nucleus/internal/domain/dealstage"
	"github.com/zime-ai/nucleus/internal/domain/meeting"
)

// Deps carries the domain services the router exposes.
type Deps struct {
	Gate      *domainauth.Gate
	Audit     *domainaudit.Service
	Meetings  *meeting.Service
	DealStage *dealstage.Service
	Logger    *zap.Logger
}

// NewRouter creates and configures a chi router with all routes.
func NewRouter(d Deps) *chi.Mux {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// ===== PUBLIC ROUTES =====

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authMW := apimiddleware.Auth(d.Gate, logger)
	authHandler := handlers.NewAuthHandler(d.Gate, logger)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-in", authHandler.SignIn)
		r.Get("/session", authHandler.Session)
		r.With(authMW).Post("/sign-out", authHandler.SignOut)
	})

	// ===== PROTECTED ROUTES =====

	var recorder apimiddleware.AuditRecorder
	if d.Audit != nil {
		recorder = d.Audit
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW)
		r.Use(apimiddleware.Audit(recorder, logger))

		meetingHandler := handlers.NewMeetingHandler(d.Meetings, logger)
		r.Route("/meetings", func(r chi.Router) {
			r.Post("/", meetingHandler.CreateMeeting)
			r.Get("/", meetingHandler.ListMeetings)
			r.Get("/{id}", meetingHandler.GetMeeting)
			r.Put("/{id}/transcript", meetingHandler.UpdateTranscript)
			r.Put("/{id}/speakers/{label}", meetingHandler.RenameSpeaker)
			r.Put("/{id}/duration", meetingHandler.UpdateDuration)
		})

		dealHandler := handlers.NewDealStageHandler(d.DealStage, logger)
		r.Route("/deal-stage", func(r chi.Router) {
			r.Get("/companies", dealHandler.ListCompanies)
			r.Get("/pipelines", dealHandler.ListPipelines)
			r.Get("/categories", dealHandler.ListCategories)
			r.Get("/mappings", dealHandler.ListMappings)

			r.Post("/wizards", dealHandler.StartWizard)
			r.Route("/wizards/{id}", func(r chi.Router) {
				r.Get("/", dealHandler.GetWizard)
				r.Delete("/", dealHandler.DeleteWizard)
				r.Post("/company", dealHandler.SelectCompany)
				r.Post("/pipeline", dealHandler.SelectPipeline)
				r.Put("/mappings/{stage_id}", dealHandler.MapStage)
				r.Post("/next", dealHandler.Next)
				r.Post("/back", dealHandler.Back)
				r.Post("/refresh", dealHandler.Refresh)
				r.Get("/review", dealHandler.Review)
				r.Post("/confirm", dealHandler.Confirm)
			})
		})

		auditHandler := handlers.NewAuditHandler(d.Audit, logger)
		r.Route("/audit", func(r chi.Router) {
			r.Get("/", auditHandler.ListEvents)
			r.Get("/{entity_type}/{entity_id}", auditHandler.ListEntityEvents)
		})
	})

	return r
}
