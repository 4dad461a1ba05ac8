package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/aminofox/rtmplink"
	"github.com/aminofox/rtmplink/pkg/config"
	"github.com/aminofox/rtmplink/pkg/logger"
	"github.com/aminofox/rtmplink/pkg/rtmp"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.NewDefaultLogger(logger.ErrorLevel, "text").
				Fatal("cannot load config", logger.Err(err))
		}
		cfg = loaded
	}

	log := logger.NewDefaultLogger(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	server := rtmplink.NewServer(cfg)

	// Answer each shared object subscription with an acknowledged change,
	// the way the FMS sample deployment greets new subscribers.
	server.SetHandler(func(conn *rtmp.ServerConn, msg rtmp.Message) error {
		soMsg, ok := msg.(*rtmp.SharedObjectMessage)
		if !ok {
			log.Debug("ignoring message", logger.String("session", conn.ID))
			return nil
		}
		for _, event := range soMsg.Events {
			if _, ok := event.(*rtmp.SOUse); ok {
				log.Info("shared object subscribed",
					logger.String("session", conn.ID),
					logger.String("name", soMsg.Name))
				return conn.SendSharedObjectUpdate(soMsg.Name, map[string]interface{}{
					"sparam": "hello from " + soMsg.Name,
				})
			}
		}
		return nil
	})

	if err := server.Start(); err != nil {
		log.Fatal("cannot start server", logger.Err(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if err := server.Stop(); err != nil {
		log.Error("shutdown failed", logger.Err(err))
	}
}
