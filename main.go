package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"sms-number-bot/internal/config"
	"sms-number-bot/internal/consumer"
	"sms-number-bot/internal/dispatcher"
	"sms-number-bot/internal/domain"
	"sms-number-bot/internal/handler"
	"sms-number-bot/internal/metrics"
	"sms-number-bot/internal/provider"
	"sms-number-bot/internal/publisher"
	"sms-number-bot/internal/repository"
	"sms-number-bot/internal/sender"
	"sms-number-bot/internal/service"
	"sms-number-bot/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.Info("Starting SMS number bot...")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	repo, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		log.WithError(err).Fatal("Could not apply migration")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repo.Seed(ctx, domain.DefaultPrices, domain.DefaultSettings); err != nil {
		log.WithError(err).Fatal("Could not seed defaults")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Telegram")
	}
	log.WithField("username", bot.Self.UserName).Info("Authorized on Telegram")
	client := telegram.NewClient(bot)

	var events service.EventPublisher = publisher.NopPublisher{}
	if cfg.Kafka.Enabled() {
		kp, err := publisher.NewKafkaPublisher(cfg.Kafka.BootstrapServers, cfg.Kafka.Topic)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer kp.Close()
		events = kp
		log.WithField("topic", cfg.Kafka.Topic).Info("Publishing events to Kafka")
	}

	var mailer sender.EmailSender = sender.NopEmailSender{}
	if cfg.SMTP.Enabled() {
		mailer = sender.NewSMTPEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		log.Warn("SMTP environment variables are not set. Welcome emails are disabled.")
	}

	svc := service.NewService(cfg, service.Deps{
		Repository: repo,
		Messenger:  client,
		Members:    client,
		Numbers:    provider.NewBreaker("numbers", provider.NewStub()),
		Publisher:  events,
		Mailer:     mailer,
	})

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	queues := dispatcher.New[int64]()
	updates := consumer.NewUpdateConsumer(bot, handler.NewUpdateHandler(svc, queues))
	if err := updates.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Update consumer failed")
	}

	log.Info("Draining queued updates")
	queues.Close()
	svc.Wait()
	log.Info("SMS number bot stopped")
}
