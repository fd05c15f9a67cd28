package injector

import (
	"github.com/CSCfi/fairdata-metax-sub001/internal/conf"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/server"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	cleanup    func()
}

// Cleanup releases all resources
func (a *App) Cleanup() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

func newApp(config *conf.Config, log *logger.Logger, httpServer *server.HTTPServer) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
	}
}
