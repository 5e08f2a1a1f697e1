package parameter

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/crud"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	crud.NewHandler(h.svc.Currencies).RegisterRoutes(api, "/currencies")
	crud.NewHandler(h.svc.ParamTypes).RegisterRoutes(api, "/param-types")
	crud.NewHandler(h.svc.Params).RegisterRoutes(api, "/params")
	crud.NewHandler(h.svc.IdentityDocuments).RegisterRoutes(api, "/identity-documents")

	api.POST("/identity-documents/:id/validate", h.ValidateDocumentNumber, auth.ReadAccess())
}

type numberRequest struct {
	Number string `json:"number"`
}

func (h *Handler) ValidateDocumentNumber(c echo.Context) error {
	id, err := crud.ParseID(c)
	if err != nil {
		return err
	}
	var req numberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.ValidateDocumentNumber(c.Request().Context(), id, req.Number)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
