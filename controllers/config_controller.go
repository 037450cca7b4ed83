package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/rewards"
	"github.com/cppla/rewardledger/utils"
)

// ConfigController exposes the active reward rules to clients.
type ConfigController struct {
	rules    rewards.Rules
	location *time.Location
}

func NewConfigController(rules rewards.Rules, location *time.Location) *ConfigController {
	if location == nil {
		location = time.Local
	}
	return &ConfigController{rules: rules, location: location}
}

// GetRewardRules returns the coin table, daily cap and streak milestones.
func (c *ConfigController) GetRewardRules(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"rules":    c.rules,
		"timezone": c.location.String(),
	})
}
