package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// refreshTimeout bounds a single gauge refresh
const refreshTimeout = 30 * time.Second

// PlanCounter reports the number of shops on each plan
type PlanCounter interface {
	PlanCounts(ctx context.Context) (map[string]int, error)
}

// RefreshShopsByPlan sets the shops-by-plan gauge from counter once. A panicking
// counter is reported as an error.
func RefreshShopsByPlan(ctx context.Context, counter PlanCounter, metrics *Metrics) (err error) {
	defer func() {
		if perr := MustRecover(recover()); perr != nil {
			err = fmt.Errorf("failed to count shops by plan: %w", perr)
		}
	}()

	counts, err := counter.PlanCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count shops by plan: %w", err)
	}
	metrics.SetShopsByPlan(counts)
	return nil
}

// StartPlanGaugeRefresher refreshes the shops-by-plan gauge immediately and then on
// schedule. The returned scheduler is already started; Stop it on shutdown.
func StartPlanGaugeRefresher(schedule string, counter PlanCounter, metrics *Metrics, logger *logrus.Logger) (*cron.Cron, error) {
	refresh := func() {
		defer RecoverPanic(logger, "shops-by-plan refresh")

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if err := RefreshShopsByPlan(ctx, counter, metrics); err != nil {
			logger.WithError(err).Warn("Shops-by-plan refresh failed")
			return
		}
		logger.Debug("Shops-by-plan gauge refreshed")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, refresh); err != nil {
		return nil, fmt.Errorf("failed to schedule shops-by-plan refresh: %w", err)
	}

	refresh()
	c.Start()

	logger.WithField("schedule", schedule).Info("Shops-by-plan refresh scheduled")
	return c, nil
}
