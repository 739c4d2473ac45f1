package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/series"
	"github.com/andresuchdata/salesboard/backend-go/internal/service"
)

type SalesHandler struct {
	service *service.SalesService
	now     func() time.Time
}

func NewSalesHandler(service *service.SalesService) *SalesHandler {
	return &SalesHandler{service: service, now: time.Now}
}

func (h *SalesHandler) parseScope(c *gin.Context) (domain.Scope, error) {
	return h.service.ResolveScope(c.Query("scope"), c.QueryArray("stockId"))
}

// parseRange reads dateStart/dateEnd (ISO or dd/mm/yyyy). Missing bounds
// default to the current month to date.
func (h *SalesHandler) parseRange(c *gin.Context) (domain.DateRange, error) {
	mtd := domain.MonthToDate(h.now())
	start, end := strings.TrimSpace(c.Query("dateStart")), strings.TrimSpace(c.Query("dateEnd"))
	if start == "" && end == "" {
		return mtd, nil
	}
	if start == "" {
		start = mtd.Start.Format(domain.ISODateLayout)
	}
	if end == "" {
		end = start
	}
	return domain.ParseDateRange(start, end)
}

func (h *SalesHandler) GetRegions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.service.Regions()})
}

func (h *SalesHandler) GetSummary(c *gin.Context) {
	scope, err := h.parseScope(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rng, err := h.parseRange(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.service.Summary(c.Request.Context(), scope, rng)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scope":  scope.Key(),
		"window": rng.Key(),
		"data":   result,
	})
}

func (h *SalesHandler) GetDaily(c *gin.Context) {
	scope, err := h.parseScope(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rng, err := h.parseRange(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	s, err := h.service.Daily(c.Request.Context(), scope, rng)
	if err != nil {
		var zeroErr *series.ZeroDataError
		if errors.As(err, &zeroErr) && s != nil {
			status, message := statusFor(err)
			c.JSON(status, gin.H{"error": message, "data": s})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s})
}

func (h *SalesHandler) GetKpi(c *gin.Context) {
	scope, err := h.parseScope(c)
	if err != nil {
		respondError(c, err)
		return
	}

	q := service.KpiQuery{Scope: scope}
	if q.SelectedDate, err = optionalDate(c.Query("selectedDate")); err != nil {
		badRequest(c, "invalid selectedDate: "+err.Error())
		return
	}
	if q.EndDate, err = optionalDate(c.Query("endDate")); err != nil {
		badRequest(c, "invalid endDate: "+err.Error())
		return
	}
	if q.ActualToday, err = optionalAmount(c.Query("actualToday")); err != nil {
		badRequest(c, "invalid actualToday: "+err.Error())
		return
	}
	if q.ActualMTD, err = optionalAmount(c.Query("actualMtd")); err != nil {
		badRequest(c, "invalid actualMtd: "+err.Error())
		return
	}

	report, err := h.service.Kpi(c.Request.Context(), q)
	if err != nil {
		var zeroErr *series.ZeroDataError
		if errors.As(err, &zeroErr) && report != nil {
			status, message := statusFor(err)
			c.JSON(status, gin.H{"error": message, "data": report})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func optionalDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return domain.ParseDate(value)
}

func optionalAmount(value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
