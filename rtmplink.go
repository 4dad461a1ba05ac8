// Package rtmplink provides an RTMP client and server built around the
// chunk stream framing layer, the AMF0 command layer and the remote
// shared object sub-protocol.
package rtmplink

import (
	"fmt"

	"github.com/aminofox/rtmplink/pkg/config"
	"github.com/aminofox/rtmplink/pkg/logger"
	"github.com/aminofox/rtmplink/pkg/rtmp"
)

// NewClient creates an RTMP client from the given configuration
func NewClient(cfg *config.Config) *rtmp.Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return rtmp.NewClient(rtmp.ClientConfig{
		IP:      cfg.Client.IP,
		Port:    cfg.Client.Port,
		TCURL:   cfg.Client.TCURL,
		PageURL: cfg.Client.PageURL,
		SWFURL:  cfg.Client.SWFURL,
		App:     cfg.Client.App,
	}, newLogger(cfg))
}

// NewServer creates an RTMP server from the given configuration
func NewServer(cfg *config.Config) *rtmp.Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return rtmp.NewServer(addr, newLogger(cfg))
}

func newLogger(cfg *config.Config) logger.Logger {
	level := logger.ParseLevel(cfg.Logging.Level)
	return logger.NewDefaultLogger(level, cfg.Logging.Format)
}
