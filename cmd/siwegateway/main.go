// Command siwegateway runs the authenticating reverse proxy in front of an
// Ethereum-compatible JSON-RPC endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"siwegateway/internal/accountclass"
	"siwegateway/internal/authn"
	"siwegateway/internal/config"
	"siwegateway/internal/forwarder"
	"siwegateway/internal/gateway"
	"siwegateway/internal/gatewaylog"
	"siwegateway/internal/gatewaymetrics"
	"siwegateway/internal/l2client"
	"siwegateway/internal/middleware"
	"siwegateway/internal/nonce"
	"siwegateway/internal/sigverify"
	"siwegateway/internal/siwe"
)

func main() {
	fs := flag.NewFlagSet("siwegateway", flag.ExitOnError)
	flags, err := config.ParseFlags(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("SIWEGATEWAY_ENV"))
	slogger := gatewaylog.Setup("siwegateway", env)
	logger := log.New(os.Stdout, "siwegateway ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	keyRing, err := buildKeyRing(cfg)
	if err != nil {
		logger.Fatalf("build key ring: %v", err)
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), l2client.DefaultTimeout)
	defer cancelDial()
	l2, err := l2client.Dial(dialCtx, cfg.L2RPCURL)
	if err != nil {
		logger.Fatalf("dial l2 rpc: %v", err)
	}
	defer l2.Close()

	classifier := accountclass.NewClassifier(l2)
	verifier := sigverify.NewVerifier(classifier, l2)
	nonceStore := nonce.NewStore()
	siweService := siwe.NewService(nonceStore, verifier, keyRing, cfg.ExpectedDomain, cfg.TokenLifetime())
	validator := authn.NewTokenValidator(keyRing, cfg.AdminKeys)
	fwd := forwarder.New(cfg.UpstreamURL)
	metrics := gatewaymetrics.New("siwegateway")

	pipeline := gateway.NewPipeline(validator, siweService, fwd, slogger, metrics)

	mux := http.NewServeMux()
	mux.Handle("/", middleware.CORS(middleware.CORSConfig{})(pipeline))
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         cfg.BindAddress,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	go func() {
		logger.Printf("listening on http://%s", listener.Addr())
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatalf("listen and serve: %v", serveErr)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
		os.Exit(1)
	}
}

func buildKeyRing(cfg *config.Config) (*authn.KeyRing, error) {
	keys := make([]authn.SignerKey, 0, len(cfg.JWTSignerKeys))
	for _, k := range cfg.JWTSignerKeys {
		keys = append(keys, authn.SignerKey{Kid: k.Kid, Secret: []byte(k.Secret)})
	}
	return authn.NewKeyRing(keys, cfg.DefaultKid)
}
