package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/andreluizvr/textora/app/repository"
	"github.com/andreluizvr/textora/internal/pkg/billing"
	"github.com/andreluizvr/textora/internal/pkg/cache"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/env"
	"github.com/andreluizvr/textora/internal/pkg/jobqueue"
	"github.com/andreluizvr/textora/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	// graceful shutdown on SIGINT/SIGTERM
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		shutdown()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

// NewApplication builds the Fiber app with all background workers running.
// The returned shutdown function stops the workers in reverse start order.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// background job workers (emails, companion pushes, webhook archiving)
	manager := jobqueue.GetManager()
	manager.Start()

	// PIX payment expiry sweeper
	notifier := jobqueue.NewNotifier(manager.GetQueue())
	billingSvc := billing.NewServiceFromDB(database.GetDB(), notifier)
	sweeper := billing.NewPixExpirySweeper(billingSvc, time.Minute)
	sweeper.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, webhook payloads are small
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	shutdown := func() {
		sweeper.Stop()
		manager.Stop()
	}

	return app, shutdown
}
