// Command httpdemo wires server.Builder to command-line flags and registers
// a handful of demonstration routes, mirroring example.cpp's main(): build
// the server from chained options, register one handler per method, start
// it, and stop cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s00inx/zhttp/internal/httpproto"
	"github.com/s00inx/zhttp/internal/middleware/cors"
	"github.com/s00inx/zhttp/server"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "httpdemo:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		port          int
		threadNum     int
		reusePort     bool
		useSSL        bool
		certFilePath  string
		keyFilePath   string
		chainFilePath string
		serverOrigin  string
	)

	flags := pflag.NewFlagSet("httpdemo", pflag.ContinueOnError)
	flags.IntVar(&port, "port", 8080, "TCP port to listen on")
	flags.IntVar(&threadNum, "thread-num", 4, "number of reactor worker goroutines")
	flags.BoolVar(&reusePort, "reuse-port", false, "enable SO_REUSEPORT")
	flags.BoolVar(&useSSL, "use-ssl", false, "terminate TLS on accepted connections")
	flags.StringVar(&certFilePath, "cert-file", "", "PEM certificate file (required if --use-ssl)")
	flags.StringVar(&keyFilePath, "key-file", "", "PEM private key file (required if --use-ssl)")
	flags.StringVar(&chainFilePath, "chain-file", "", "PEM chain file (optional)")
	flags.StringVar(&serverOrigin, "server-origin", "http://localhost:8080", "origin this server is reachable at, for CORS same-origin checks")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	builder := server.NewBuilder().
		Name("httpdemo").
		Port(port).
		ThreadNum(threadNum).
		ReusePort(reusePort).
		Logger(logger).
		Use(cors.New(cors.Config{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			ServerOrigin:     serverOrigin,
			AllowCredentials: false,
			MaxAge:           600,
		}))

	if useSSL {
		builder = builder.UseTLS(certFilePath, keyFilePath, chainFilePath)
	}

	registerDemoRoutes(builder)

	srv, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Run()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-sig:
		logger.Info("received shutdown signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

// registerDemoRoutes mirrors example.cpp's route table: one handler per
// method. OPTIONS is left to the builder's default route, which advertises
// the allowed set.
func registerDemoRoutes(b *server.Builder) {
	b.Get("/get", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 200
		resp.StatusMessage = httpproto.StatusText(200)
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBody([]byte("get"))
	})

	b.Post("/post", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 200
		resp.StatusMessage = httpproto.StatusText(200)
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBody(req.Body)
	})

	b.Put("/update", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 200
		resp.StatusMessage = httpproto.StatusText(200)
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBody([]byte("updated"))
	})

	b.Delete("/delete", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 204
		resp.StatusMessage = httpproto.StatusText(204)
	})

	b.Patch("/patch", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 200
		resp.StatusMessage = httpproto.StatusText(200)
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBody([]byte("patched"))
	})

	b.Handle(httpproto.MethodHEAD, "/head", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 200
		resp.StatusMessage = httpproto.StatusText(200)
	})

	b.HandleRegex(httpproto.MethodGET, "/users/:id", func(req *httpproto.Request, resp *httpproto.Response) {
		resp.StatusCode = 200
		resp.StatusMessage = httpproto.StatusText(200)
		resp.SetHeader("Content-Type", "text/plain")
		resp.SetBody([]byte("user " + req.Param("param1")))
	})

	// The server already answers OPTIONS requests with the synthetic
	// default route registered by server.NewBuilder; no override needed here.
}
