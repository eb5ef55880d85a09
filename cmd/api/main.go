package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"voltedge/internal/api/handlers"
	"voltedge/internal/api/middleware"
	"voltedge/internal/config"
	"voltedge/internal/orchestrator"
	"voltedge/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

func main() {
	engineCfg := flag.String("engine-config", "", "Optional YAML file with the engine section (max_simulations, retention_window_s, ...)")
	flag.Parse()

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ec := config.Engine{MaxSimulations: 16, RetentionWindowS: 300, RingCapacity: 4096}
	if *engineCfg != "" {
		raw, err := os.ReadFile(*engineCfg)
		if err != nil {
			log.Fatalf("read engine config: %v", err)
		}
		if err := yaml.Unmarshal(raw, &ec); err != nil {
			log.Fatalf("parse engine config: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	orc := orchestrator.New(orchestrator.FromEngineConfig(ec, logger, metrics))
	defer orc.Close()

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.ErrorHandler())

	simHandler := handlers.NewSimulationHandler(orc)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "simulations": len(orc.List())})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/simulations", simHandler.Create)
		api.GET("/simulations", simHandler.List)
		api.GET("/simulations/:id", simHandler.Get)
		api.DELETE("/simulations/:id", simHandler.Delete)

		api.POST("/simulations/:id/start", simHandler.Start)
		api.POST("/simulations/:id/pause", simHandler.Pause)
		api.POST("/simulations/:id/stop", simHandler.Stop)

		api.POST("/simulations/:id/faults", simHandler.InjectFault)
		api.POST("/simulations/:id/plants/:plant_id/output", simHandler.SetOutput)
		api.POST("/simulations/:id/repair", simHandler.Repair)
		api.POST("/simulations/:id/load-spike", simHandler.LoadSpike)

		api.POST("/simulations/:id/tick", simHandler.Tick)
		api.POST("/simulations/:id/run-until", simHandler.RunUntil)
		api.GET("/simulations/:id/snapshot", simHandler.Snapshot)
		api.GET("/simulations/:id/stream", simHandler.Stream)
	}

	addr := fmt.Sprintf(":%s", port)
	logger.Info("starting gateway", slog.String("addr", addr), slog.Int("max_simulations", ec.MaxSimulations))
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}
