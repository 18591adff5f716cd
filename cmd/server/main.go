package main

import (
	"context"
	"net/http"

	"github.com/yishin/mimbonode/config"
	"github.com/yishin/mimbonode/db"
	"github.com/yishin/mimbonode/internal/notify"
	"github.com/yishin/mimbonode/internal/repository"
	"github.com/yishin/mimbonode/internal/server"
	"github.com/yishin/mimbonode/internal/service"
	"github.com/yishin/mimbonode/internal/token"
	"github.com/yishin/mimbonode/utils"
)

func main() {
	logger := utils.InitLogger()
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}

	database, err := db.ConnectDb(cfg.DBURL, logger)
	if err != nil {
		logger.Fatal(err)
	}

	if err := db.Migrate(database, true, logger); err != nil {
		logger.Fatal(err)
	}

	repo := repository.NewRepository(database, logger)

	tokenClient, err := token.NewClient(context.Background(), cfg.TonConfigURL, logger)
	if err != nil {
		logger.Fatal("Failed to create token client: ", err)
	}

	var notifier service.Notifier
	if cfg.TelegramBotToken != "" {
		telegram, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Fatal("Failed to create telegram notifier: ", err)
		}
		notifier = telegram
	}

	engine := service.NewService(repo, tokenClient, notifier, &cfg, logger)
	srv := server.NewServer(engine, repo, tokenClient, logger)

	logger.Infof("🚀 Listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Routes()); err != nil {
		logger.Fatal(err)
	}
}
