package api

import (
	"log/slog"

	"github.com/shaiso/Flowstack/internal/service"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	svc    *service.FlowService
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service *service.FlowService
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    cfg.Service,
		logger: logger,
	}
}
