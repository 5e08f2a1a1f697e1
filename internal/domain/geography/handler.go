package geography

import (
	"github.com/labstack/echo/v4"

	"github.com/refdata/refdata/internal/platform/crud"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	crud.NewHandler(h.svc.Countries).RegisterRoutes(api, "/countries")
	crud.NewHandler(h.svc.Regions).RegisterRoutes(api, "/regions")
	crud.NewHandler(h.svc.Cities).RegisterRoutes(api, "/cities")
	crud.NewHandler(h.svc.Sectors).RegisterRoutes(api, "/sectors")
}
