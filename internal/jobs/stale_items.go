package jobs

import (
	"context"
	"fmt"
	"time"

	"BrokerSettle/internal/config"
	"BrokerSettle/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// StaleItemConfig holds configuration for the unattributed-item sweep.
type StaleItemConfig struct {
	Schedule      string
	BatchSize     int
	TimeZone      string
	RetentionDays int
	HouseBrokerID string
}

// NewDefaultStaleItemConfig creates a StaleItemConfig seeded from engine config.
func NewDefaultStaleItemConfig(engineCfg *config.EngineConfig) *StaleItemConfig {
	cfg := &StaleItemConfig{
		Schedule:      config.DefaultStaleSchedule,
		BatchSize:     config.StaleBatchSize,
		TimeZone:      config.DefaultTimeZone,
		RetentionDays: config.DefaultRetentionDays,
	}
	if engineCfg != nil {
		if engineCfg.RetentionDays > 0 {
			cfg.RetentionDays = engineCfg.RetentionDays
		}
		cfg.HouseBrokerID = engineCfg.HouseBrokerID
	}
	return cfg
}

// RunStaleItemScheduler starts the cron job that sweeps commission items left
// unattributed past the retention window over to the house broker.
func RunStaleItemScheduler(cfg *StaleItemConfig, db *pgxpool.Pool) error {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultStaleSchedule
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = config.StaleBatchSize
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.Schedule, func() {
		if err := ProcessStaleItems(db, cfg); err != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Stale item sweep failed: %v", err))
		}
	})

	if err != nil {
		return fmt.Errorf("unable to schedule stale item sweep: %v", err)
	}

	c.Start()
	logger.GlobalLogger.LogAudit("Stale item scheduler started")

	return nil
}

// ProcessStaleItems reassigns unattributed items older than the retention
// window to the house broker, in batches so one pass cannot hold long locks.
func ProcessStaleItems(db *pgxpool.Pool, cfg *StaleItemConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	houseID := cfg.HouseBrokerID
	if houseID == "" {
		err := db.QueryRow(ctx,
			`SELECT id::text FROM brokers WHERE is_house = true LIMIT 1`).Scan(&houseID)
		if err != nil {
			return fmt.Errorf("no house broker configured: %v", err)
		}
	}

	totalMoved := 0
	for {
		tag, err := db.Exec(ctx, `
			UPDATE comm_items SET broker_id = $1
			WHERE id IN (
				SELECT id FROM comm_items
				WHERE broker_id IS NULL
				  AND created_at < now() - make_interval(days => $2)
				LIMIT $3
			)`, houseID, cfg.RetentionDays, cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("stale item batch failed: %v", err)
		}
		moved := int(tag.RowsAffected())
		totalMoved += moved
		if moved < cfg.BatchSize {
			break
		}
	}

	if totalMoved > 0 {
		logger.GlobalLogger.LogAudit(fmt.Sprintf(
			"Stale item sweep: %d items older than %d days assigned to house broker %s",
			totalMoved, cfg.RetentionDays, houseID))
	}
	return nil
}
