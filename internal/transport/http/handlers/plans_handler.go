package handlers

import (
	"net/http"

	"github.com/storycraft/billing/internal/domain/rules"
	"github.com/storycraft/billing/internal/transport/http/dto"
	httperrors "github.com/storycraft/billing/internal/transport/http/errors"
)

type PlansHandler struct{}

func NewPlansHandler() *PlansHandler {
	return &PlansHandler{}
}

func (h *PlansHandler) List(w http.ResponseWriter, _ *http.Request) {
	plans := rules.Plans()
	items := make([]dto.PlanResponse, 0, len(plans))
	for _, plan := range plans {
		items = append(items, dto.PlanResponse{
			PlanType:        string(plan.PlanType),
			Cycle:           string(plan.Cycle),
			DisplayName:     plan.DisplayName,
			Price:           plan.Price,
			ListPrice:       plan.ListPrice,
			DiscountPercent: plan.DiscountPercent(),
			DurationDays:    plan.DurationDays,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.PlanListResponse{Items: items})
}
