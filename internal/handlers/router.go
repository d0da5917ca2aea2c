package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"questgen/internal/config"
	"questgen/internal/middleware"
	"questgen/internal/observability"
	"questgen/internal/services"
	"questgen/internal/version"
)

// NewRouter creates the HTTP router with all middleware and routes
func NewRouter(
	cfg *config.Config,
	questionService services.QuestionServiceInterface,
	sessionService services.SessionServiceInterface,
	statsService services.StatsServiceInterface,
	generationService services.GenerationServiceInterface,
	launcher SessionLauncher,
	logger *observability.Logger,
) *gin.Engine {
	// Setup Gin router
	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger))

	// Add HTTP request logging middleware using our observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}

		// Add error message if present
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		// Use appropriate log level based on status code
		if statusCode >= 500 {
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		} else if statusCode >= 400 {
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		} else {
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	db := questionService.DB()
	router.GET("/health", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"service":  "questgen",
				"database": "unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":               "ok",
			"service":              "questgen",
			"database":             "ok",
			"credential_pool_size": generationService.Pool().Size(),
		})
	})

	// Add OpenTelemetry middleware for HTTP tracing and context propagation
	router.Use(observability.GinMiddlewareWithErrorHandling("questgen"))

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	catalogHandler := NewCatalogHandler(questionService, cfg, logger)
	questionHandler := NewQuestionHandler(questionService, generationService, cfg, logger)
	generationHandler := NewGenerationHandler(sessionService, questionService, statsService, launcher, cfg, logger)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Question Maker API is running"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "questgen",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		// Exam hierarchy
		v1.GET("/exams", catalogHandler.GetExams)
		v1.GET("/courses/:examID", catalogHandler.GetCourses)
		v1.GET("/subjects/:courseID", catalogHandler.GetSubjects)
		v1.GET("/units/:subjectID", catalogHandler.GetUnits)
		v1.GET("/chapters/:unitID", catalogHandler.GetChapters)
		v1.GET("/topics/:chapterID", catalogHandler.GetTopics)
		v1.GET("/parts/:courseID", catalogHandler.GetParts)
		v1.GET("/slots/:courseID", catalogHandler.GetSlots)
		v1.GET("/all-topics-with-weightage/:courseID", catalogHandler.GetAllTopicsWithWeightage)

		// Questions
		v1.GET("/existing-questions/:topicID", questionHandler.GetExistingQuestions)
		v1.GET("/generated-questions/:topicID", questionHandler.GetGeneratedQuestions)
		v1.POST("/generate-question", questionHandler.GenerateQuestion)

		// Auto-generation sessions
		v1.POST("/start-auto-generation", generationHandler.StartAutoGeneration)
		v1.GET("/auto-generation-status/:sessionID", generationHandler.GetAutoGenerationStatus)
		v1.GET("/generation-stats/:courseID", generationHandler.GetGenerationStats)
	}

	return router
}
