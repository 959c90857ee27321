package bootstrap

import (
	"cdv-engine/internal/config"
	"cdv-engine/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
)

// New loads config and builds the app for serverless hosts, which cannot import internal packages.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, _, _, err := router.CreateApp(cfg)
	return app, err
}
