package pricing

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/validate"
)

type Handler struct {
	svc    *Service
	quotes *QuoteService
}

func NewHandler(svc *Service, quotes *QuoteService) *Handler {
	return &Handler{svc: svc, quotes: quotes}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	crud.NewHandler(h.svc.Corridors).RegisterRoutes(api, "/corridors")
	crud.NewHandler(h.svc.Contracts).RegisterRoutes(api, "/contracts")
	crud.NewHandler(h.svc.PricingRules).RegisterRoutes(api, "/pricing-rules")
	crud.NewHandler(h.svc.Tiers).RegisterRoutes(api, "/tiers")
	crud.NewHandler(h.svc.TaxRules).RegisterRoutes(api, "/tax-rules")

	api.POST("/pricing/quote", h.Quote, auth.ReadAccess())
}

func (h *Handler) Quote(c echo.Context) error {
	var req QuoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return apierr.HTTP(err)
	}
	q, err := h.quotes.Quote(c.Request().Context(), req)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, q)
}
