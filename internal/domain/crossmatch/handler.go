package crossmatch

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/blood-requests", h.CreateRequest)
	api.GET("/blood-requests", h.ListRequests)
	api.GET("/blood-requests/:id", h.GetRequest)
	api.POST("/blood-requests/:id/sample", h.RegisterSample)
	api.GET("/blood-requests/:id/candidates", h.ListCandidates)
	api.POST("/blood-requests/:id/crossmatch/:unitId", h.RecordCrossmatch)
	api.POST("/blood-requests/:id/crossmatch/:unitId/electronic", h.ElectronicCrossmatch)
	api.POST("/blood-requests/:id/reserve", h.ReserveUnits)
	api.POST("/blood-requests/:id/cancel", h.CancelRequest)
}

func (h *Handler) CreateRequest(c echo.Context) error {
	var in CreateRequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.CreateRequest(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, key := range []string{"patient_id", "status", "urgency"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}
	items, total, err := h.svc.ListRequests(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) RegisterSample(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in RegisterSampleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sample, err := h.svc.RegisterSample(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sample)
}

func (h *Handler) ListCandidates(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	candidates, err := h.svc.ListCandidates(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidates)
}

func (h *Handler) RecordCrossmatch(c echo.Context) error {
	id, unitID, err := requestUnitParams(c)
	if err != nil {
		return err
	}
	var in RecordCrossmatchInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	x, err := h.svc.RecordCrossmatch(c.Request().Context(), id, unitID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, x)
}

func (h *Handler) ElectronicCrossmatch(c echo.Context) error {
	id, unitID, err := requestUnitParams(c)
	if err != nil {
		return err
	}
	x, err := h.svc.ElectronicCrossmatch(c.Request().Context(), id, unitID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, x)
}

func (h *Handler) ReserveUnits(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in ReserveInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reserved, err := h.svc.ReserveUnits(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reserved)
}

func (h *Handler) CancelRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.CancelRequest(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func requestUnitParams(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	unitID, err := uuid.Parse(c.Param("unitId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid unit id")
	}
	return id, unitID, nil
}
