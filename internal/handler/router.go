package handler

import (
	"referralengine/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		referrer := api.Group("/referrer")
		{
			referrer.POST("/register", h.RegisterReferrer)
			referrer.GET("/balance", h.GetBalance)
			referrer.GET("/ledger", h.GetStatement)
		}

		lead := api.Group("/lead")
		{
			lead.POST("/submit", h.SubmitLead)
			lead.POST("/status", h.SetLeadStatus)
			lead.GET("/detail", h.GetLead)
			lead.GET("/list", h.ListLeads)
		}

		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/request", h.RequestWithdrawal)
			withdrawal.POST("/process", h.StartWithdrawalProcessing)
			withdrawal.POST("/approve", h.ApproveWithdrawal)
			withdrawal.POST("/reject", h.RejectWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
		}

		ledger := api.Group("/ledger")
		{
			ledger.POST("/bonus", h.GrantBonus)
			ledger.POST("/adjustment", h.RecordAdjustment)
		}

		leaderboard := api.Group("/leaderboard")
		{
			leaderboard.GET("/top", h.GetLeaderboard)
		}

		outbox := api.Group("/outbox")
		{
			outbox.GET("/failed", h.ListFailedOutboxMessages)
			outbox.POST("/requeue", h.RequeueFailedOutboxMessages)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
