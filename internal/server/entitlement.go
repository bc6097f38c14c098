package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/tradeboard/internal/entitlement/domain"
	"github.com/smallbiznis/tradeboard/internal/tier"
)

func (s *Server) CheckEntitlement(c *gin.Context) {
	var req entitlementdomain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	decision, err := s.entitlementSvc.Check(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (s *Server) ConsumeEntitlement(c *gin.Context) {
	var req entitlementdomain.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	decision, err := s.entitlementSvc.Consume(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// ListFeatures exposes the limit matrix, one row per tier.
func (s *Server) ListFeatures(c *gin.Context) {
	type featureLimit struct {
		Feature string `json:"feature"`
		Limit   string `json:"limit"`
	}

	out := make(map[string][]featureLimit, len(tier.Tiers()))
	for _, t := range tier.Tiers() {
		limits := make([]featureLimit, 0, len(tier.Features()))
		for _, f := range tier.Features() {
			limits = append(limits, featureLimit{
				Feature: string(f),
				Limit:   s.catalog.Lookup(t, f).String(),
			})
		}
		out[string(t)] = limits
	}

	c.JSON(http.StatusOK, gin.H{"tiers": out})
}
