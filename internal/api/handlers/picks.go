package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/internal/persistence"
	"github.com/stitts-dev/pick-research/pkg/utils"
)

// PickReader lists persisted output rows.
type PickReader interface {
	ListPicks(ctx context.Context, q persistence.PickQuery) ([]models.PickRecord, error)
	ListTrends(ctx context.Context, q persistence.PickQuery) ([]models.TrendRecord, error)
}

type PickHandler struct {
	store  PickReader
	logger *logrus.Logger
}

func NewPickHandler(store PickReader, logger *logrus.Logger) *PickHandler {
	return &PickHandler{
		store:  store,
		logger: logger,
	}
}

type listQuery struct {
	Date      string `form:"date"`
	Sport     string `form:"sport"`
	Generator string `form:"generator"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

func bindListQuery(c *gin.Context) (persistence.PickQuery, bool) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.SendValidationError(c, "Invalid query parameters", err.Error())
		return persistence.PickQuery{}, false
	}
	if q.Date != "" && !utils.IsDateShape(q.Date) {
		utils.SendValidationError(c, "Invalid date", "date must be YYYY-MM-DD")
		return persistence.PickQuery{}, false
	}
	return persistence.PickQuery{
		Date:      q.Date,
		Generator: q.Generator,
		Sport:     q.Sport,
		Limit:     q.Limit,
	}, true
}

// ListPicks handles GET /api/v1/picks
func (h *PickHandler) ListPicks(c *gin.Context) {
	q, ok := bindListQuery(c)
	if !ok {
		return
	}

	picks, err := h.store.ListPicks(c.Request.Context(), q)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list picks")
		utils.SendInternalError(c, "Failed to list picks")
		return
	}
	utils.SendSuccessWithMeta(c, picks, &utils.Meta{Total: int64(len(picks)), Date: q.Date})
}

// ListTrends handles GET /api/v1/trends
func (h *PickHandler) ListTrends(c *gin.Context) {
	q, ok := bindListQuery(c)
	if !ok {
		return
	}

	trends, err := h.store.ListTrends(c.Request.Context(), q)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list trends")
		utils.SendInternalError(c, "Failed to list trends")
		return
	}
	utils.SendSuccessWithMeta(c, trends, &utils.Meta{Total: int64(len(trends)), Date: q.Date})
}
