// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"

	"shakespeare-quote-api/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	quoteHandler *handler.QuoteHandler,
	sessionHandler *handler.SessionHandler,
) {
	// 引文检索
	quotes := v1.Group("/quotes")
	{
		quotes.POST("/search", quoteHandler.Search)
		quotes.POST("/select", quoteHandler.Select)
		quotes.GET("/count", quoteHandler.Count)
	}

	// 片段管理
	fragments := v1.Group("/fragments")
	{
		fragments.POST("", quoteHandler.Ingest)
		fragments.DELETE("", quoteHandler.Delete)
		fragments.GET("/:id", quoteHandler.Get)
	}

	// 会话管理
	session := v1.Group("/session")
	{
		session.GET("/stats", sessionHandler.Stats)
		session.POST("/reset", sessionHandler.Reset)
		session.POST("/save", sessionHandler.Save)
		session.POST("/load", sessionHandler.Load)
		session.POST("/merge", sessionHandler.Merge)
	}
}
