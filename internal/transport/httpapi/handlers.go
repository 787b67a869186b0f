package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ois/internal/domain"
	"github.com/vladislavdragonenkov/ois/internal/service/query"
)

// OrderQueries — операции чтения, которые нужны HTTP API.
type OrderQueries interface {
	Summary(ctx context.Context, customerID int64, req domain.PageRequest) (query.Summary, error)
	TotalByCustomer(ctx context.Context, customerID int64) (decimal.Decimal, error)
}

type summaryBody struct {
	TotalOnOrders decimal.Decimal `json:"totalOnOrders"`
}

type paginationBody struct {
	Page          int   `json:"page"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

type listOrdersResponse struct {
	Summary    summaryBody            `json:"summary"`
	Data       []domain.OrderResponse `json:"data"`
	Pagination paginationBody         `json:"pagination"`
}

type customerTotalResponse struct {
	CustomerID int64           `json:"customerId"`
	Total      decimal.Decimal `json:"total"`
}

type handlers struct {
	queries OrderQueries
}

func (h handlers) listOrders(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	req, ok := pageParams(c)
	if !ok {
		return
	}

	summary, err := h.queries.Summary(c.Request.Context(), customerID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, listOrdersResponse{
		Summary: summaryBody{TotalOnOrders: summary.Total},
		Data:    summary.Orders.Items,
		Pagination: paginationBody{
			Page:          summary.Orders.Page,
			PageSize:      summary.Orders.PageSize,
			TotalElements: summary.Orders.TotalElements,
			TotalPages:    summary.Orders.TotalPages,
		},
	})
}

func (h handlers) customerTotal(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	total, err := h.queries.TotalByCustomer(c.Request.Context(), customerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, customerTotalResponse{CustomerID: customerID, Total: total})
}

func customerIDParam(c *gin.Context) (int64, bool) {
	customerID, err := strconv.ParseInt(c.Param("customerId"), 10, 64)
	if err != nil || customerID <= 0 {
		badRequest(c, "customerId must be a positive integer")
		return 0, false
	}
	return customerID, true
}

func pageParams(c *gin.Context) (domain.PageRequest, bool) {
	var req domain.PageRequest
	var err error

	if raw := c.Query("page"); raw != "" {
		if req.Page, err = strconv.Atoi(raw); err != nil {
			badRequest(c, "page must be an integer")
			return domain.PageRequest{}, false
		}
	}
	if raw := c.Query("pageSize"); raw != "" {
		if req.PageSize, err = strconv.Atoi(raw); err != nil {
			badRequest(c, "pageSize must be an integer")
			return domain.PageRequest{}, false
		}
	}
	return req, true
}
