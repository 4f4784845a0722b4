package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/medway/exam-backend/internal/config"
	"github.com/medway/exam-backend/internal/handler"
	"github.com/medway/exam-backend/internal/middleware"
	"github.com/medway/exam-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Submission *handler.SubmissionHandler
	Exam       *handler.ExamHandler
	Question   *handler.QuestionHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response can be traced.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Submission Pipeline ────────────────────────────────────────
	// Status polling is deliberately not rate limited; clients are
	// expected to back off on non-terminal states.
	api := router.Group("/api/v1")
	{
		api.POST("/submissions", handlers.Submission.Submit)
		api.GET("/submissions/status", handlers.Submission.Status)
		api.GET("/submissions", handlers.Submission.List)
		api.GET("/submissions/:id", handlers.Submission.GetResult)
		api.GET("/submissions/:id/analysis", handlers.Submission.Analysis)
		api.GET("/students/:student_id/submissions", handlers.Submission.ListByStudent)
		api.GET("/students/:student_id/exams/:exam_id/results", handlers.Submission.GetStudentExamResult)
	}

	// ─── 2. Exam Catalog ───────────────────────────────────────────────
	{
		api.GET("/exams", handlers.Exam.List)
		api.GET("/exams/:id", handlers.Exam.Detail)
		api.GET("/exams/:id/statistics", handlers.Exam.Statistics)
	}

	// ─── 3. Admin Writes (Rate Limited) ────────────────────────────────
	adminLimiter := middleware.NewRateLimiter(60, time.Minute)
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(adminLimiter.Middleware())
	{
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.POST("/exams/:id/questions", handlers.Exam.AttachQuestion)
		adminAPI.POST("/questions", handlers.Question.Create)
		adminAPI.GET("/questions/:id", handlers.Question.Get)
		adminAPI.PUT("/alternatives/:id/correct", handlers.Question.SetCorrect)
	}

	return router
}
