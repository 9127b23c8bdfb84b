package cli

import (
	"fmt"
	"log/slog"

	"github.com/vorluno/planilla/internal/app"
	"github.com/vorluno/planilla/pkg/config"
)

// App holds the CLI application dependencies. Container is nil when the
// database could not be reached and the CLI runs in limited mode.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Container *app.Container
}

// ErrNoDatabase is returned by commands that need the service container.
var ErrNoDatabase = fmt.Errorf("database connection required")

var current *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	current = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return current
}

// RequireContainer returns the wired container or ErrNoDatabase.
func RequireContainer() (*app.Container, error) {
	if current == nil || current.Container == nil {
		return nil, ErrNoDatabase
	}
	return current.Container, nil
}

// Logger returns the CLI logger, falling back to the default logger.
func Logger() *slog.Logger {
	if current != nil && current.Logger != nil {
		return current.Logger
	}
	if logger != nil {
		return logger
	}
	return slog.Default()
}
