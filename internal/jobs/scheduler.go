package jobs

import (
	"fmt"
	"log"

	"BrokerSettle/internal/config"
	"BrokerSettle/internal/logger"
	"BrokerSettle/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CronService struct {
	config    map[string]interface{}
	db        *pgxpool.Pool
	engineCfg *config.EngineConfig
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool, engineCfg *config.EngineConfig) serviceiface.Service {
	return &CronService{
		config:    cfg,
		db:        db,
		engineCfg: engineCfg,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	staleConfig := NewDefaultStaleItemConfig(s.engineCfg)

	// Override from services.yaml if provided
	if s.config != nil {
		if schedule, ok := s.config["stale_schedule"].(string); ok && schedule != "" {
			staleConfig.Schedule = schedule
		}
		if batchSize, ok := s.config["stale_batch_size"].(int); ok && batchSize > 0 {
			staleConfig.BatchSize = batchSize
		}
		if days, ok := s.config["retention_days"].(int); ok && days > 0 {
			staleConfig.RetentionDays = days
		}
	}

	if err := RunStaleItemScheduler(staleConfig, s.db); err != nil {
		return fmt.Errorf("failed to start stale item scheduler: %v", err)
	}

	logger.GlobalLogger.LogAudit("Cron service started with stale item sweep")
	log.Println("Cron service started — Stale Item Sweep scheduled")

	return nil
}

func (s *CronService) Stop() error {
	log.Println("Cron service stopped.")
	return nil
}
