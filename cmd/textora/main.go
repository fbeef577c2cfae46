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
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	manager := jobqueue.GetManager()
	manager.Start()

	notifier := jobqueue.NewNotifier(manager.GetQueue())
	billingSvc := billing.NewServiceFromDB(database.GetDB(), notifier)
	sweeper := billing.NewPixExpirySweeper(billingSvc, time.Minute)
	sweeper.Start()

	// Find the project root whether we run from the repo root or cmd/textora
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/textora to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, webhook payloads are small
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	router.InstallRouter(app)

	shutdown := func() {
		sweeper.Stop()
		manager.Stop()
	}

	return app, shutdown
}
