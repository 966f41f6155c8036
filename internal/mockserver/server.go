// Package mockserver is a self-contained implementation of the portal
// backend. It serves the same REST contract as the real portal over a
// LocalBackend and a KV store so the client and CLI can run offline.
package mockserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gradpush/extrapoints/internal/applications"
	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/fieldmap"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
)

// Server is the mock portal backend
type Server struct {
	config config.ServerConfig
	router *chi.Mux
	logger *slog.Logger
	kv     storage.KV

	apps    *applications.LocalBackend
	mapper  *fieldmap.Mapper
	stats   *fieldmap.Mapper
	ranking *fieldmap.Mapper

	users    *userStore
	tokens   *tokenIssuer
	captchas *captchaStore
	hub      *hub

	faculties   *collection[models.Faculty]
	departments *collection[models.Department]
	majors      *collection[models.Major]
	rules       *collection[models.Rule]
	files       *collection[models.GraduateFile]
}

// New creates the server, seeding the configured users and a default
// organization tree into kv when they are missing
func New(ctx context.Context, cfg config.ServerConfig, kv storage.KV, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		kv:       kv,
		mapper:   fieldmap.Default(),
		stats:    applications.StatisticsMapper(),
		ranking:  applications.RankingMapper(),
		users:    newUserStore(kv),
		tokens:   newTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		captchas: newCaptchaStore(5 * time.Minute),
		hub:      newHub(logger),

		faculties: newCollection(kv, "mock:faculties", func(f *models.Faculty) *models.ID { return &f.ID }),
		departments: newCollection(kv, "mock:departments", func(d *models.Department) *models.ID {
			return &d.ID
		}),
		majors: newCollection(kv, "mock:majors", func(m *models.Major) *models.ID { return &m.ID }),
		rules:  newCollection(kv, "mock:rules", func(r *models.Rule) *models.ID { return &r.ID }),
		files:  newCollection(kv, "mock:graduate-files", func(f *models.GraduateFile) *models.ID { return &f.ID }),
	}
	s.apps = applications.NewLocalBackend(
		applications.NewKVSnapshot(kv, applications.DefaultSnapshotKey),
		applications.WithChangeHook(s.hub.publish),
		applications.WithLocalLogger(logger),
	)

	if err := s.seed(ctx, cfg.Users); err != nil {
		return nil, fmt.Errorf("failed to seed mock data: %w", err)
	}

	s.setupRouter()
	return s, nil
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// Close disconnects event subscribers
func (s *Server) Close() {
	s.hub.close()
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Long-lived; kept out of the request timeout
		r.With(s.authenticate).Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/reset-password", s.handleResetPassword)
			r.Get("/session-check", s.handleSessionCheck)
			r.Post("/logout", s.handleLogout)
			r.Get("/generate-captcha", s.handleCaptcha)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)

				r.Get("/user/{username}", s.handleGetUser)

				r.Get("/faculties", s.handleListFaculties)
				r.Get("/departments/{facultyId}", s.handleListDepartments)
				r.Get("/majors/{departmentId}", s.handleListMajors)

				r.Route("/applications", func(r chi.Router) {
					r.Get("/", s.handleListApplications)
					r.Post("/", s.handleCreateApplication)
					r.With(s.requireRole(models.RoleTeacher, models.RoleAdmin)).Get("/pending", s.handleListPending)
					r.Get("/statistics", s.handleStatistics)
					r.Get("/students-ranking", s.handleRanking)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetApplication)
						r.Put("/", s.handleUpdateApplication)
						r.Delete("/", s.handleDeleteApplication)
						r.With(s.requireRole(models.RoleTeacher, models.RoleAdmin)).Post("/review", s.handleReview)
					})
				})
				r.Get("/students/ranking", s.handleRanking)

				r.Route("/admin", func(r chi.Router) {
					r.Get("/public/graduate-files", s.handleListGraduateFiles)

					r.Group(func(r chi.Router) {
						r.Use(s.requireRole(models.RoleTeacher, models.RoleAdmin))
						r.Get("/graduate-files", s.handleListGraduateFiles)
						r.Post("/graduate-files", s.handleUploadGraduateFile)
						r.Delete("/graduate-files/{id}", s.handleDeleteGraduateFile)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.requireRole(models.RoleAdmin))
						r.Route("/faculties", collectionRoutes(s, s.faculties, "faculties", validateFaculty))
						r.Route("/departments", collectionRoutes(s, s.departments, "departments", validateDepartment))
						r.Route("/majors", collectionRoutes(s, s.majors, "majors", validateMajor))
						r.Route("/rules", func(r chi.Router) {
							collectionRoutes(s, s.rules, "rules", validateRule)(r)
							r.Patch("/{id}/status", s.handleRuleStatus)
						})
						r.Route("/students", s.studentRoutes)
					})
				})
			})
		})
	})

	s.router = r
}
