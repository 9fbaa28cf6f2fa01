package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clubgallery/photoflow/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	submissionsHandler := handlers.NewSubmissionsHandler(s.logger, s.deps.Photos, s.deps.Derivatives, s.deps.Queue)
	photosHandler := handlers.NewPhotosHandler(s.logger, s.deps.Photos, s.deps.Faces, s.deps.Tags, s.deps.Snapshots)
	reviewHandler := handlers.NewReviewHandler(s.logger, s.deps.Photos, s.deps.Queue, s.deps.Snapshots, s.deps.Processor)
	facesHandler := handlers.NewFacesHandler(s.logger, s.deps.Faces, s.deps.Snapshots, s.deps.Processor)
	tagsHandler := handlers.NewTagsHandler(s.logger, s.deps.Tags)
	membersHandler := handlers.NewMembersHandler(s.deps.Snapshots)

	// Operational endpoints (no API prefix)
	s.router.Get("/healthz", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Submission
		r.Post("/submissions", submissionsHandler.Submit)

		// Photos
		r.Get("/photos", photosHandler.List)
		r.Get("/photos/{id}", photosHandler.Get)
		r.Get("/photos/{id}/file/{tier}", photosHandler.File)

		// Review workflow
		r.Post("/photos/{id}/approve", reviewHandler.Approve)
		r.Post("/photos/{id}/reject", reviewHandler.Reject)
		r.Put("/photos/{id}/event", reviewHandler.AssignEvent)
		r.Post("/photos/{id}/reprocess", reviewHandler.Reprocess)

		// Faces
		r.Post("/photos/{id}/faces/{faceId}/confirm", facesHandler.Confirm)
		r.Post("/photos/{id}/faces/{faceId}/guest", facesHandler.MarkGuest)

		// Tags
		r.Post("/photos/{id}/tags", tagsHandler.Add)

		// Reference data
		r.Get("/events", reviewHandler.Events)
		r.Get("/members", membersHandler.List)

		// Queue administration
		r.Get("/queue/stats", reviewHandler.QueueStats)
		r.Post("/queue/retry-failed", reviewHandler.RetryFailed)
	})
}
