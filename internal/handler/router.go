package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/flicky/solar-storefront/internal/middleware"
)

type Handlers struct {
	Auth         *AuthHandler
	Product      *ProductHandler
	Order        *OrderHandler
	Review       *ReviewHandler
	Payment      *PaymentHandler
	Notification *NotificationHandler
	Health       *HealthHandler
}

func NewRouter(h Handlers, jwtSecret string, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(log), gin.Recovery())

	if h.Health != nil {
		router.GET("/healthz", h.Health.Healthz)
		router.GET("/readyz", h.Health.Readyz)
	}

	authed := middleware.AuthMiddleware(jwtSecret)
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.Auth.Register)
		auth.POST("/register/verify", h.Auth.VerifyRegistration)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/login/verify", h.Auth.VerifyLogin)
		auth.POST("/otp/resend", h.Auth.ResendOTP)
		auth.GET("/me", authed, h.Auth.Me)

		products := v1.Group("/products")
		products.GET("", h.Product.Catalog)
		products.GET("/:id", h.Product.Show)
		products.GET("/:id/rating", h.Review.RatingSummary)

		reviews := v1.Group("/reviews")
		reviews.GET("", h.Review.ListApproved)
		reviews.POST("", authed, h.Review.Create)

		orders := v1.Group("/orders", authed)
		orders.POST("", h.Order.CreateOrder)
		orders.GET("", h.Order.ListOrders)
		orders.GET("/:id", h.Order.GetOrder)
		orders.POST("/:id/cancel", h.Order.CancelOrder)

		v1.POST("/payments/webhook", h.Payment.Webhook)

		notifications := v1.Group("/notifications", authed)
		notifications.GET("", h.Notification.List)
		notifications.POST("/read", h.Notification.MarkRead)
		v1.GET("/stream", middleware.StreamAuthMiddleware(jwtSecret), h.Notification.Stream)

		admin := v1.Group("/admin", authed, middleware.AdminOnly())
		admin.GET("/products", h.Product.Inventory)
		admin.GET("/products/:id", h.Product.AdminShow)
		admin.POST("/products", h.Product.Create)
		admin.PUT("/products/:id", h.Product.Update)
		admin.DELETE("/products/:id", h.Product.Delist)
		admin.GET("/orders", h.Order.AdminListOrders)
		admin.GET("/orders/:id", h.Order.AdminGetOrder)
		admin.PATCH("/orders/:id/status", h.Order.UpdateStatus)
		admin.GET("/reviews/pending", h.Review.ListPending)
		admin.POST("/reviews/:id/approve", h.Review.Approve)
		admin.DELETE("/reviews/:id", h.Review.Delete)
	}

	return router
}
