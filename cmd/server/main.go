package main

import (
	"context"
	"net/http"

	webAdapter "backoffice/internal/adapters/web"
	"backoffice/internal/app"
	"backoffice/internal/config"
	"backoffice/internal/core"
	"backoffice/internal/db"
	"backoffice/internal/gateway"
	"backoffice/internal/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger")
	}
	log := logger.WithComponent("server")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	var gw core.PaymentGateway
	if cfg.GatewaySecretKey != "" {
		gw = gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey)
	} else {
		log.Warn().Msg("GATEWAY_SECRET_KEY not set; gateway payment flows disabled")
	}

	clients := core.NewClientService(pool)
	invoices := core.NewInvoiceService(pool)
	stock := core.NewStockService(pool)
	subscriptions := core.NewSubscriptionService(pool)

	dispatcher := core.NewDispatcher()
	dispatcher.OnCompletion(core.InvoiceCompletionHandler(invoices))
	dispatcher.OnCompletion(core.ClientCompletionHandler())
	dispatcher.OnCompletion(core.SubscriptionCompletionHandler(subscriptions))
	dispatcher.OnRefund(core.InvoiceRefundHandler(invoices))
	dispatcher.OnRefund(core.ClientRefundHandler())

	payments := core.NewPaymentService(pool, dispatcher, gw)

	svc := app.NewAppService(pool, clients, invoices, stock, payments, subscriptions)
	handler := webAdapter.NewHandler(svc, cfg.AllowedOrigins)

	log.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.ServerPort, handler); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
