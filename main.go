// main.go
// Application entry point: loads configuration, initializes the logger and
// runs the presence server until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/isaac-art/dinamap/internal/api"
	"github.com/isaac-art/dinamap/internal/logger"
	"github.com/isaac-art/dinamap/internal/util"
)

const defaultConfigPath = "config.json"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	config, err := util.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v, using defaults\n", err)
	}

	logger.InitLogger(config.Log)
	serverLogger := logger.NewLogger("server")
	serverLogger.WithFields(map[string]interface{}{
		"level":       config.Log.Level,
		"log_to_file": config.Log.LogToFile,
		"log_to_json": config.Log.LogToJSON,
		"addr":        config.Addr,
		"data_file":   config.DataFile,
	}).Info("Logger initialized with configuration")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(configPath); err == nil {
		go func() {
			err := util.Watch(ctx, configPath, logger.NewLogger("config"), func(c util.Config) {
				level := logger.SetLevel(c.Log.Level)
				serverLogger.Infof("Log level set to %s", level)
			})
			if err != nil {
				serverLogger.Warnf("Config watching disabled: %v", err)
			}
		}()
	}

	if err := api.StartServer(ctx, config, serverLogger); err != nil {
		serverLogger.Fatalf("Server stopped: %v", err)
	}
}
