package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/keyvault/internal/app"
	"github.com/dmitrijs2005/keyvault/internal/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.New(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a.Run(ctx, os.Stdin, os.Stdout)

}
