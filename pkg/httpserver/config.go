package httpserver

import "time"

type Config struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"` // invoice jobs can run long when triggered over HTTP
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewFromConfig creates a Server from cfg. Zero values keep the defaults.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	s := New(opts...)
	if cfg.Addr != "" {
		s.addr = cfg.Addr
	}
	for dst, v := range map[*time.Duration]time.Duration{
		&s.readHeaderTimeout: cfg.ReadHeaderTimeout,
		&s.readTimeout:       cfg.ReadTimeout,
		&s.writeTimeout:      cfg.WriteTimeout,
		&s.idleTimeout:       cfg.IdleTimeout,
		&s.shutdownTimeout:   cfg.ShutdownTimeout,
	} {
		if v > 0 {
			*dst = v
		}
	}
	return s
}
