package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/tiendafacil/pedidos-api/internal/dto"
	"github.com/tiendafacil/pedidos-api/internal/middleware"
	"github.com/tiendafacil/pedidos-api/internal/worker"
)

type NotificationHandler struct {
	redisClient *redis.Client
}

func NewNotificationHandler(redisClient *redis.Client) *NotificationHandler {
	return &NotificationHandler{redisClient: redisClient}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	key := worker.NotificationsKey(userID.String())
	notifications, err := h.redisClient.LRange(c.Request.Context(), key, 0, -1).Result()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, dto.NotificationListResponse{Notifications: notifications})
}
