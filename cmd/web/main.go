package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rate_table/internal/app"
)

func main() {
	configPath := flag.String("config", "rate_table.conf", "path to the rig configuration file")
	flag.Parse()

	log.Println("starting rate-table web viewer")

	if err := app.RunWeb(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
