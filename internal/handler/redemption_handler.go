package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-eval-api/internal/dto"
	"github.com/noah-isme/course-eval-api/internal/models"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/response"
)

type pointRedeemer interface {
	Redeem(ctx context.Context, userID string, req dto.RedeemPointsRequest) ([]models.RewardPointRedemption, error)
	Overview(ctx context.Context, userID string) (*dto.RedemptionOverview, error)
}

// RedemptionHandler serves the reward point endpoints of the acting user.
type RedemptionHandler struct {
	service pointRedeemer
}

// NewRedemptionHandler constructs the handler.
func NewRedemptionHandler(svc pointRedeemer) *RedemptionHandler {
	return &RedemptionHandler{service: svc}
}

// Overview godoc
// @Summary Show reward points and open redemption events
// @Tags Rewards
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rewards/redemptions [get]
func (h *RedemptionHandler) Overview(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview)
}

// Redeem godoc
// @Summary Redeem reward points for one or more events
// @Tags Rewards
// @Accept json
// @Produce json
// @Param payload body dto.RedeemPointsRequest true "Redemption batch"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rewards/redemptions [post]
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.RedeemPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid redemption payload"))
		return
	}
	created, err := h.service.Redeem(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"redemptions": created})
}
