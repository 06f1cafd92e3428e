package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinica/clinica/internal/platform/auth"
	"github.com/clinica/clinica/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	slotReaders := auth.RequireRole(auth.RolePhysician, auth.RoleReceptionist, auth.RoleHR)
	hr := auth.RequireRole(auth.RoleHR)

	api.POST("/doctors/:id/slots/generate", h.GenerateSlots, hr)
	api.GET("/slots", h.ListSlots, slotReaders)
	api.GET("/slots/:id", h.GetSlot, slotReaders)
	api.DELETE("/slots/:id", h.DeleteSlot, hr)
	api.GET("/calendar", h.Calendar, auth.RequireRole(auth.RolePhysician, auth.RoleReceptionist))
	api.POST("/slots/:id/assign", h.AssignPatient, auth.RequireRole(auth.RoleReceptionist))
	api.POST("/slots/:id/status", h.ChangeStatus, auth.RequireRole(auth.RolePhysician))
}

// errorResponse maps service errors onto HTTP errors.
func errorResponse(err error) error {
	var verrs ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return validationFailed(verrs)
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotAlreadyAssigned), errors.Is(err, ErrSlotInPast), errors.Is(err, ErrSlotBooked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus):
		return validationFailed(ValidationErrors{{Field: "status", Message: err.Error()}})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

func validationFailed(errs ValidationErrors) error {
	return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
		"message": "validation failed",
		"errors":  errs,
	})
}

func parseIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func parseOptionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func parseOptionalDate(c echo.Context, name string) (Date, error) {
	v := c.QueryParam(name)
	if v == "" {
		return Date{}, nil
	}
	d, err := ParseDate(v)
	if err != nil {
		return Date{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return d, nil
}

// -- Generation --

type generateRequest struct {
	DateFrom            Date           `json:"date_from"`
	DateTo              Date           `json:"date_to"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	Week                WeeklyTemplate `json:"week"`
}

type generateResponse struct {
	Outcome   string `json:"outcome"`
	Message   string `json:"message,omitempty"`
	Requested int    `json:"requested"`
	Created   int    `json:"created"`
	Dropped   int    `json:"dropped"`
	Slots     []Slot `json:"slots"`
}

// GenerateSlots creates open slots for the doctor in the path. With
// ?dry_run=true nothing is stored and the planned slots are returned.
func (h *Handler) GenerateSlots(c echo.Context) error {
	doctorID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var body generateRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req := GenerationRequest{
		DoctorID:            doctorID,
		DateFrom:            body.DateFrom,
		DateTo:              body.DateTo,
		SlotDurationMinutes: body.SlotDurationMinutes,
		Week:                body.Week,
	}
	ctx := c.Request().Context()

	if dryRun, _ := strconv.ParseBool(c.QueryParam("dry_run")); dryRun {
		slots, err := h.svc.PreviewSlots(ctx, req)
		if errors.Is(err, ErrNothingToGenerate) {
			return c.JSON(http.StatusOK, nothingToGenerate(0))
		}
		if err != nil {
			return errorResponse(err)
		}
		return c.JSON(http.StatusOK, generateResponse{
			Outcome:   "preview",
			Requested: len(slots),
			Slots:     slots,
		})
	}

	result, err := h.svc.GenerateSlots(ctx, req)
	if errors.Is(err, ErrNothingToGenerate) {
		return c.JSON(http.StatusOK, nothingToGenerate(0))
	}
	if err != nil {
		return errorResponse(err)
	}
	if len(result.Created) == 0 {
		return c.JSON(http.StatusOK, nothingToGenerate(result.Dropped))
	}
	return c.JSON(http.StatusCreated, generateResponse{
		Outcome:   "created",
		Requested: result.Requested,
		Created:   len(result.Created),
		Dropped:   result.Dropped,
		Slots:     result.Created,
	})
}

func nothingToGenerate(dropped int) generateResponse {
	return generateResponse{
		Outcome:   "nothing_to_generate",
		Message:   ErrNothingToGenerate.Error(),
		Requested: dropped,
		Dropped:   dropped,
		Slots:     []Slot{},
	}
}

// -- Queries --

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	sl, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, sl)
}

// ListSlots filters by doctor_id, patient_id, status and an inclusive
// from/to date range.
func (h *Handler) ListSlots(c echo.Context) error {
	var (
		f   SlotFilter
		err error
	)
	if f.DoctorID, err = parseOptionalUUID(c, "doctor_id"); err != nil {
		return err
	}
	if f.PatientID, err = parseOptionalUUID(c, "patient_id"); err != nil {
		return err
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseSlotStatus(v)
		if err != nil {
			return errorResponse(err)
		}
		f.Status = &st
	}
	from, err := parseOptionalDate(c, "from")
	if err != nil {
		return err
	}
	if !from.IsZero() {
		t := from.Midnight()
		f.From = &t
	}
	to, err := parseOptionalDate(c, "to")
	if err != nil {
		return err
	}
	if !to.IsZero() {
		t := to.AddDays(1).Midnight()
		f.To = &t
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSlots(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return errorResponse(err)
	}
	if items == nil {
		items = []*Slot{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// Calendar returns the month view around ?date= (default today).
func (h *Handler) Calendar(c echo.Context) error {
	doctorID, err := parseOptionalUUID(c, "doctor_id")
	if err != nil {
		return err
	}
	selected, err := parseOptionalDate(c, "date")
	if err != nil {
		return err
	}
	view, err := h.svc.CalendarMonth(c.Request().Context(), doctorID, selected)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, calendarResponse{
		Year:          view.Year,
		Month:         int(view.Month),
		MonthName:     view.Month.String(),
		Selected:      view.Selected,
		DoctorID:      view.DoctorID,
		DaysWithSlots: view.DaysWithSlots,
		DaySlots:      view.DaySlots,
	})
}

type calendarResponse struct {
	Year          int        `json:"year"`
	Month         int        `json:"month"`
	MonthName     string     `json:"month_name"`
	Selected      Date       `json:"selected"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	DaysWithSlots []int      `json:"days_with_slots"`
	DaySlots      []*Slot    `json:"day_slots"`
}

// -- Booking --

type assignRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Reason    string    `json:"reason"`
}

func (h *Handler) AssignPatient(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var body assignRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sl, err := h.svc.AssignPatient(c.Request().Context(), id, body.PatientID, body.Reason)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, sl)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	var body statusRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status, err := ParseSlotStatus(body.Status)
	if err != nil {
		return errorResponse(err)
	}
	sl, err := h.svc.ChangeStatus(c.Request().Context(), id, status)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, sl)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), id); err != nil {
		return errorResponse(err)
	}
	return c.NoContent(http.StatusNoContent)
}
