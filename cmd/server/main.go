package main

import (
	"context"
	"log"

	"github.com/infinex-exchange/account.account/internal/server"
	"github.com/infinex-exchange/account.account/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
