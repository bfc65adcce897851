package handler

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/middleware"
)

type RouterDeps struct {
	Documents    *DocumentHandler
	Ask          *AskHandler
	JWTSecret    []byte
	AskRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
	authGroup.GET("/documents/:id/download", deps.Documents.Download)
	authGroup.POST("/ask", middleware.RateLimit(deps.AskRateLimit), deps.Ask.Ask)
}

func extOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
