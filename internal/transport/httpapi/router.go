package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// NewRouter собирает gin-роутер API чтения заказов.
func NewRouter(queries OrderQueries, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(logger))

	h := handlers{queries: queries}
	v1 := router.Group("/api/v1")
	v1.GET("/customers/:customerId/orders", h.listOrders)
	v1.GET("/customers/:customerId/orders/total", h.customerTotal)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	})

	return router
}
