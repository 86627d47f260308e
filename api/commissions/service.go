package commissions

import (
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"BrokerSettle/internal/config"
	"BrokerSettle/internal/serviceiface"
)

type CommissionsService struct {
	config    map[string]interface{}
	pool      *pgxpool.Pool
	engineCfg *config.EngineConfig
}

func NewCommissionsService(cfg map[string]interface{}, pool *pgxpool.Pool, engineCfg *config.EngineConfig) serviceiface.Service {
	return &CommissionsService{config: cfg, pool: pool, engineCfg: engineCfg}
}

func (s *CommissionsService) Name() string {
	return "commissions"
}

func (s *CommissionsService) Start() error {
	port := "7143"
	switch p := s.config["port"].(type) {
	case string:
		if p != "" {
			port = p
		}
	case int:
		port = strconv.Itoa(p)
	case float64:
		port = strconv.Itoa(int(p))
	}
	go StartCommissionsService(s.pool, s.engineCfg, port)
	return nil
}

func (s *CommissionsService) Stop() error {
	return nil
}
