package main

import (
	"context"

	"github.com/allsafeASM/rulegen/internal/app"
	"github.com/projectdiscovery/gologger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := app.Execute(context.Background(), version); err != nil {
		gologger.Fatal().Msgf("%v", err)
	}
}
