package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"genflow/internal/handler/api"
	"genflow/internal/handler/middleware"
	"genflow/internal/pkg/config"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

func NewRouter(
	engine *gin.Engine,
	cfg config.Config,
	jobHandler *api.JobHandler,
	callbackHandler *api.CallbackHandler,
	accountHandler *api.AccountHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	setupMiddleware(engine, cfg)
	setupRoutes(engine, jobHandler, callbackHandler, accountHandler, authMiddleware)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.LoggingMiddleware(nil, cfg.Log))
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(
	engine *gin.Engine,
	jobHandler *api.JobHandler,
	callbackHandler *api.CallbackHandler,
	accountHandler *api.AccountHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	engine.GET("/health", healthCheck)

	if gin.Mode() == gin.DebugMode {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := engine.Group("/api")
	apiGroup.Use(authMiddleware.RequireServiceAuth())
	{
		jobs := apiGroup.Group("/jobs")
		jobs.Use(authMiddleware.RequireActingUser())
		{
			addRoutes(jobs, []route{
				{Method: http.MethodPost, Path: "", Handler: jobHandler.SubmitJob},
				{Method: http.MethodGet, Path: "", Handler: jobHandler.ListJobs},
				{Method: http.MethodGet, Path: "/:id", Handler: jobHandler.GetJob},
				{Method: http.MethodPost, Path: "/:id/cancel", Handler: jobHandler.CancelJob},
			})
		}

		callbacks := apiGroup.Group("/callbacks")
		{
			addRoutes(callbacks, []route{
				{Method: http.MethodPost, Path: "/generation", Handler: callbackHandler.HandleGenerationCallback},
			})
		}

		accounts := apiGroup.Group("/accounts")
		{
			addRoutes(accounts, []route{
				{Method: http.MethodPost, Path: "/:id/credits", Handler: accountHandler.Credit},
				{Method: http.MethodGet, Path: "/:id", Handler: accountHandler.GetAccount},
			})
		}
	}
}

// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
	})
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		h := r.Handler
		if len(r.Mw) > 0 {
			h = chainHandlers(append(r.Mw, r.Handler)...)
		}
		switch r.Method {
		case http.MethodGet:
			g.GET(r.Path, h)
		case http.MethodPost:
			g.POST(r.Path, h)
		case http.MethodPut:
			g.PUT(r.Path, h)
		case http.MethodPatch:
			g.PATCH(r.Path, h)
		case http.MethodDelete:
			g.DELETE(r.Path, h)
		default:
			g.Any(r.Path, h)
		}
	}
}

func chainHandlers(hs ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range hs {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
