package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/welfarefund/src/logger"
)

const (
	// Fund-wide aggregates, dropped on every write.
	ckAdminDashboard = "agg_admin_dashboard"
	ckMonthlyReport  = "agg_monthly_report_%d"

	// Per-member results.
	ckMemberDashboard = "res_member_dashboard_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// NewReportCache creates the cache shared by the services.
func NewReportCache(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		ttl = DefaultCacheExpiration
	}
	return cache.New(ttl, CacheCleanupInterval)
}

// invalidateReports drops every fund-wide aggregate plus the member's own dashboard.
func invalidateReports(c *cache.Cache, userID int64) {
	if c == nil {
		return
	}
	memberKey := fmt.Sprintf(ckMemberDashboard, userID)
	for key := range c.Items() {
		if strings.HasPrefix(key, "agg_") || key == memberKey {
			c.Delete(key)
		}
	}
	logger.L.Debug("Invalidated report caches", "userID", userID)
}
