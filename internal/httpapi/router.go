package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/leadchat/internal/common"
	"github.com/suPer8Hu/leadchat/internal/config"
	"github.com/suPer8Hu/leadchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/leadchat/internal/httpapi/middleware"
)

func corsConfig(cfg config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	// the widget is embedded on arbitrary sites unless origins are pinned
	if len(cfg.CORSOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CORSOrigins
	}
	return c
}

func NewRouter(h *handlers.Handler) *gin.Engine {
	cfg := h.Cfg

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(cors.New(corsConfig(cfg)))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	// widget
	r.POST("/chat/exchange", middleware.OptionalAuth(cfg.JWTSecret), h.Exchange)
	r.GET("/widget-settings", h.WidgetSettings)
	r.POST("/widget-events", h.WidgetEvent)

	// dashboard
	r.POST("/login", h.Login)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/leads", h.ListLeads)
	authGroup.PATCH("/leads/:id/status", h.UpdateLeadStatus)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.GET("/conversations/:id/messages", h.ListConversationMessages)
	authGroup.PUT("/widget-settings/:identifier", h.SaveWidgetSettings)
	authGroup.GET("/widget-events", h.ListWidgetEvents)
	return r
}
