package http

import (
	"net/http"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type RouterOptions struct {
	CORSOrigins []string
	// SubmitLimiter throttles attempt submissions; nil disables throttling.
	SubmitLimiter *RateLimiter
}

// NewRouter mounts the quiz API, the instructor feed and the operational endpoints.
func NewRouter(service *app.QuizService, authn *auth.Authenticator, m *metrics.Metrics, logger *zap.Logger, opts RouterOptions) http.Handler {
	quizzes := NewQuizHandler(service, m, logger)
	feed := NewFeedHandler(service, quizzes, originChecker(opts.CORSOrigins), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/quizzes", func(r chi.Router) {
		r.Use(auth.Middleware(authn, logger))
		r.Use(requirePrincipal)

		r.Get("/", quizzes.ListQuizzes)
		r.Post("/", quizzes.CreateQuiz)
		r.Route("/{quizId}", func(r chi.Router) {
			if opts.SubmitLimiter != nil {
				r.With(opts.SubmitLimiter.Middleware).Post("/attempt", quizzes.SubmitAttempt)
			} else {
				r.Post("/attempt", quizzes.SubmitAttempt)
			}
			r.Get("/feed", feed.ServeWS)
		})
	})
	return r
}

func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
