package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
)

func (s *Server) UpsertSubscription(c *gin.Context) {
	var req subscriptiondomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptionSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) GetPlan(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("user_id"))
	if err != nil || userID == 0 {
		AbortWithError(c, subscriptiondomain.ErrInvalidUser)
		return
	}

	plan, err := s.subscriptionSvc.GetPlan(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID.String(),
		"tier":    plan.Tier,
		"status":  plan.Status,
		"exists":  plan.Exists,
	})
}
