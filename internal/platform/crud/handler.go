package crud

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/auth"
	"github.com/refdata/refdata/internal/platform/record"
	"github.com/refdata/refdata/pkg/pagination"
)

// reserved query parameters that are never treated as filters.
var reserved = map[string]bool{
	"page": true, "page_size": true, "limit": true, "offset": true,
	"_count": true, "_offset": true, "sort": true, "order": true,
}

type Handler[T record.Entity] struct {
	svc *Service[T]
}

func NewHandler[T record.Entity](svc *Service[T]) *Handler[T] {
	return &Handler[T]{svc: svc}
}

// RegisterRoutes mounts the standard endpoints of the entity under path.
func (h *Handler[T]) RegisterRoutes(api *echo.Group, path string) {
	read := api.Group(path, auth.ReadAccess())
	read.GET("", h.List)
	read.GET("/:id", h.Get)
	read.GET("/by-code/:code", h.GetByCode)

	write := api.Group(path, auth.WriteAccess())
	write.POST("", h.Create)
	write.PUT("/:id", h.Update)
	write.PATCH("/:id", h.Patch)
	write.DELETE("/:id", h.Delete)
}

func (h *Handler[T]) Create(c echo.Context) error {
	e := h.svc.New()
	if err := c.Bind(e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Create(c.Request().Context(), e); err != nil {
		return apierr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderLocation,
		strings.TrimSuffix(c.Request().URL.Path, "/")+"/"+e.Base().ID.String())
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler[T]) Get(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler[T]) GetByCode(c echo.Context) error {
	e, err := h.svc.GetByCode(c.Request().Context(), c.Param("code"), queryFilters(c))
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler[T]) List(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), queryFilters(c), p)
	if err != nil {
		return apierr.HTTP(err)
	}
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler[T]) Update(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	e := h.svc.New()
	if err := c.Bind(e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Update(c.Request().Context(), id, e); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler[T]) Patch(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	e, err := h.svc.Patch(c.Request().Context(), id, c.Request().Header.Get(echo.HeaderContentType), body)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler[T]) Delete(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id, version); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ParseID reads the :id path parameter.
func ParseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// expectedVersion reads the optimistic version of a delete from the
// version_id query parameter or an If-Match header.
func expectedVersion(c echo.Context) (int, error) {
	raw := c.QueryParam("version_id")
	if raw == "" {
		raw = strings.Trim(c.Request().Header.Get("If-Match"), `W/"`)
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid version_id")
	}
	return v, nil
}

// queryFilters collects the query parameters that are not pagination controls.
func queryFilters(c echo.Context) map[string]string {
	out := make(map[string]string)
	for k, v := range c.QueryParams() {
		if reserved[k] || k == "version_id" || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}
