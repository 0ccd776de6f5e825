package unit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/pagination"
)

type Handler struct {
	svc          *Service
	returnWindow time.Duration
}

func NewHandler(svc *Service, returnWindow time.Duration) *Handler {
	return &Handler{svc: svc, returnWindow: returnWindow}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/blood-units", h.RegisterUnit)
	api.GET("/blood-units", h.SearchUnits)
	api.GET("/blood-units/:id", h.GetUnit)
	api.GET("/blood-units/number/:unitNumber", h.GetUnitByNumber)
	api.GET("/inventory/summary", h.InventorySummary)

	api.POST("/blood-units/:id/testing", h.MoveToTesting)
	api.POST("/blood-units/:id/quarantine", h.QuarantineUnit)
	api.POST("/blood-units/:id/quarantine/release", h.ReleaseFromQuarantine)
	api.POST("/blood-units/:id/discard", h.DiscardUnit)
	api.POST("/blood-units/:id/return", h.ReturnUnit)
}

func (h *Handler) RegisterUnit(c echo.Context) error {
	var in RegisterUnitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.RegisterUnit(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUnit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetUnitByNumber(c echo.Context) error {
	u, err := h.svc.GetUnitByNumber(c.Request().Context(), c.Param("unitNumber"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) SearchUnits(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"status", "blood_group", "component_type", "donation_id", "expiring_before"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.SearchUnits(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) InventorySummary(c echo.Context) error {
	rows, err := h.svc.InventorySummary(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) MoveToTesting(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.MoveToTesting(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

type quarantineRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) QuarantineUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req quarantineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.QuarantineUnit(c.Request().Context(), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ReleaseFromQuarantine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.ReleaseFromQuarantine(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

type discardRequest struct {
	Reason string  `json:"reason"`
	Note   *string `json:"note,omitempty"`
}

func (h *Handler) DiscardUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req discardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.DiscardUnit(c.Request().Context(), id, req.Reason, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ReturnUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.ReturnUnit(c.Request().Context(), id, h.returnWindow)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}
