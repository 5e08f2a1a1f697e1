package network

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
	crud.NewHandler(h.svc.Partners).RegisterRoutes(api, "/partners")
	crud.NewHandler(h.svc.Agencies).RegisterRoutes(api, "/agencies")
	crud.NewHandler(h.svc.Banks).RegisterRoutes(api, "/banks")
	crud.NewHandler(h.svc.SupportAccounts).RegisterRoutes(api, "/support-accounts")
}
