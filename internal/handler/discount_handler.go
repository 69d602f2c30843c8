package handler

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type DiscountHandler struct {
	uc *usecase.DiscountUsecase
}

func NewDiscountHandler(uc *usecase.DiscountUsecase) *DiscountHandler {
	return &DiscountHandler{uc: uc}
}

type IssueDiscountRequest struct {
	UserID     int64 `json:"user_id"`
	Percentage int   `json:"percentage"`
	ValidDays  int   `json:"valid_days"`
}

func (h *DiscountHandler) RegisterRoutes(e *echo.Echo, admin *echo.Group, cfg config.Config, userRepo repository.UserRepository) {
	e.GET("/discounts/active", h.active,
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
	)
	admin.POST("/discounts", h.issue)
}

func (h *DiscountHandler) active(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Active(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DiscountHandler) issue(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req IssueDiscountRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Issue(c.Request().Context(), adminID, usecase.IssueDiscountInput{
		UserID:     req.UserID,
		Percentage: req.Percentage,
		ValidDays:  req.ValidDays,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}
