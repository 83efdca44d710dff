package handlers

import (
	"time"

	"ad-control-service/internal/campaign"
	"ad-control-service/internal/eligibility"
	"ad-control-service/internal/impressions"
	"ad-control-service/internal/ledger"
	"ad-control-service/internal/session"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Server struct {
	db          *gorm.DB
	logger      *logrus.Logger
	ledger      *ledger.Ledger
	registry    *campaign.Registry
	resolver    *eligibility.Resolver
	impressions *impressions.Service
	sessions    *session.Manager
	eventQueue  *impressions.EventQueue
}

func NewServer(db *gorm.DB, logger *logrus.Logger, kafkaWriter *kafka.Writer) *Server {
	eventQueue := impressions.NewEventQueue(kafkaWriter, logger, 10000)
	led := ledger.NewLedger(db, logger)

	return &Server{
		db:          db,
		logger:      logger,
		ledger:      led,
		registry:    campaign.NewRegistry(db, logger),
		resolver:    eligibility.NewResolver(eligibility.NewProfileDirectory(db), led, logger),
		impressions: impressions.NewService(db, logger, eventQueue),
		sessions:    session.NewManager(12 * time.Hour),
		eventQueue:  eventQueue,
	}
}

func (s *Server) GetEventQueue() *impressions.EventQueue {
	return s.eventQueue
}

func (s *Server) GetSessions() *session.Manager {
	return s.sessions
}

func (s *Server) Shutdown() {
	s.logger.Info("Shutting down server...")
	s.logger.Info("Server shutdown complete")
}
