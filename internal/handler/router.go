package handler

import (
	"slotmarket/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 余额相关
		balance := api.Group("/balance")
		{
			balance.GET("", h.GetBalance)
			balance.POST("/recharge", h.Recharge)
			balance.GET("/history", h.ListCashHistory)
		}

		// 活动相关
		campaign := api.Group("/campaign")
		{
			campaign.POST("/create", h.CreateCampaign)
			campaign.POST("/update", h.UpdateCampaign)
			campaign.GET("/detail", h.GetCampaign)
			campaign.GET("/list", h.ListCampaigns)
			campaign.POST("/approve", h.ApproveCampaign)
			campaign.POST("/reject", h.RejectCampaign)
			campaign.POST("/activate", h.ActivateCampaign)
			campaign.POST("/pause", h.PauseCampaign)
			campaign.POST("/resume", h.ResumeCampaign)
		}

		// 购买相关
		purchase := api.Group("/purchase")
		{
			purchase.POST("/execute", h.ExecutePurchase)
			purchase.GET("/excluded-keywords", h.ExcludedKeywords)
		}

		// 槽位相关
		slot := api.Group("/slot")
		{
			slot.GET("/list", h.ListSlots)
			slot.POST("/status", h.UpdateSlotStatus)
		}

		// 保量报价相关
		quote := api.Group("/quote")
		{
			quote.POST("/request", h.RequestQuote)
			quote.GET("/messages", h.ListQuoteMessages)
			quote.POST("/message", h.AppendQuoteMessage)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
