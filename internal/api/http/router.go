package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type Deps struct {
	DB          *sql.DB
	Quizzes     *quiz.Service
	Accounts    *auth.Accounts
	Events      *syncx.EventRepo
	CORSOrigins []string
}

// NewRouter wires every route: JWT -> stored role -> RBAC -> handler.
func NewRouter(d Deps) http.Handler {
	tokens := d.Accounts.Tokens()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// websocket stream: no request timeout
	r.With(authmw.JWTMiddleware(tokens)).Get("/auth/events", auth.EventsHandler(d.Accounts.Hub()))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/auth/signup", auth.SignUpHandler(d.Accounts))
		r.Post("/auth/signin", auth.SignInHandler(d.Accounts))

		r.Group(func(pr chi.Router) {
			pr.Use(authmw.JWTMiddleware(tokens))
			pr.Post("/auth/signout", auth.SignOutHandler(d.Accounts))
			pr.Post("/auth/refresh", auth.RefreshHandler(d.Accounts))
			pr.Get("/auth/session", auth.SessionHandler(d.Accounts))
		})

		// Protected API (JWT -> stored role -> RBAC)
		r.Group(func(pr chi.Router) {
			pr.Use(authmw.JWTMiddleware(tokens), authmw.AttachRoleFromDB(d.DB))

			// quizzes
			pr.With(rbac.Require("quiz:view")).Get("/quizzes", ListQuizzesHandler(d.Quizzes))
			pr.With(rbac.Require("quiz:create")).Post("/quizzes", CreateQuizHandler(d.Quizzes))
			pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}", GetQuizHandler(d.Quizzes))
			pr.With(rbac.Require("quiz:update")).Patch("/quizzes/{quizID}", UpdateQuizHandler(d.Quizzes))
			pr.With(rbac.Require("quiz:delete")).Delete("/quizzes/{quizID}", DeleteQuizHandler(d.Quizzes))
			pr.With(rbac.Require("quiz:publish")).Post("/quizzes/{quizID}/publish", PublishQuizHandler(d.Quizzes))
			pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}/questions", ListQuestionsHandler(d.Quizzes))
			pr.With(rbac.Require("question:create")).Post("/quizzes/{quizID}/questions", AddQuestionsHandler(d.Quizzes))
			pr.With(rbac.Require("results:view")).Get("/quizzes/{quizID}/results", QuizResultsHandler(d.Quizzes))

			// questions
			pr.With(rbac.Require("question:view")).Get("/questions/{questionID}", GetQuestionHandler(d.Quizzes))
			pr.With(rbac.Require("question:update")).Patch("/questions/{questionID}", UpdateQuestionHandler(d.Quizzes))
			pr.With(rbac.Require("question:delete")).Delete("/questions/{questionID}", DeleteQuestionHandler(d.Quizzes))

			// attempts; ownership is checked by the service
			pr.With(rbac.Require("attempt:view-all")).Get("/attempts", ListAttemptsHandler(d.Quizzes))
			pr.With(rbac.Require("attempt:create")).Post("/attempts", CreateAttemptHandler(d.Quizzes))
			pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
				Get("/attempts/{attemptID}", GetAttemptHandler(d.Quizzes))
			pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
				Get("/attempts/{attemptID}/answers", ListAnswersHandler(d.Quizzes))
			pr.With(rbac.Require("attempt:answer")).Put("/attempts/{attemptID}/answers", SaveAnswersHandler(d.Quizzes))
			pr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(d.Quizzes))
			pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
				Get("/attempts/{attemptID}/review", ReviewAttemptHandler(d.Quizzes))
			pr.With(rbac.Require("attempt:view-own")).Get("/me/attempts", MyAttemptsHandler(d.Quizzes))

			// profile & users
			pr.With(rbac.Require("profile:update")).Patch("/me", UpdateProfileHandler(d.Accounts))
			pr.With(rbac.Require("user:change_password")).Post("/users/change-password", ChangePasswordHandler(d.DB))
			pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.DB))
			pr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.DB))
			pr.With(rbac.Require("users:update_role")).Put("/users/{userID}/role", AdminUpdateUserRoleHandler(d.DB, d.Accounts))

			// admin
			pr.With(rbac.Require("admin:dashboard")).Get("/admin/summary", AdminSummaryHandler(d.DB))
			pr.With(rbac.Require("admin:dashboard")).Get("/admin/events", AdminEventsHandler(d.Events))
			pr.With(rbac.Require("admin:compliance")).Post("/admin/pii/export", HandleAdminPIIExport(d.DB))
			pr.With(rbac.Require("admin:compliance")).Post("/admin/pii/delete", HandleAdminPIIDelete(d.DB))
		})
	})
	return r
}
