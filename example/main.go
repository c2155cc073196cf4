// demo wiring for the engine: env config, structured logging, a few
// routes including a body-consuming one
package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kfcemployee/monoserve/server"
	"github.com/kfcemployee/monoserve/server/engine"
	"github.com/kfcemployee/monoserve/server/protocol"
	"github.com/kfcemployee/monoserve/server/router"
)

func main() {
	logCfg := zap.NewProductionConfig()
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log, err := logCfg.Build()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		log.Fatal("config failed", zap.Error(err))
	}

	routes := router.New()
	routes.Get("/", func(_ *protocol.Request, res *protocol.Response, _ *engine.BodyReader) error {
		res.SetContentType("text/plain")
		res.SetBodyString("monoserve up\n")
		return nil
	})
	routes.Get("/health", func(_ *protocol.Request, res *protocol.Response, _ *engine.BodyReader) error {
		res.SetContentType("application/json")
		res.SetBodyString(`{"status":"ok"}`)
		return nil
	})
	routes.Post("/echo", func(req *protocol.Request, res *protocol.Response, body *engine.BodyReader) error {
		p, err := body.Read(req.ContentLength())
		if err != nil {
			return err
		}
		if ct, ok := req.Header("Content-Type"); ok {
			res.SetContentType(ct)
		}
		res.SetBody(p)
		return nil
	})

	srv, err := server.NewTCP("127.0.0.1", 8080, routes, cfg, log)
	if err != nil {
		log.Fatal("server setup failed", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		if err := srv.Kill(); err != nil {
			log.Warn("kill failed", zap.Error(err))
		}
	}()

	if err := srv.Serve(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
