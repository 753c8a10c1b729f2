// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rate_table/internal/app"
)

func main() {
	configPath := flag.String("config", "rate_table.conf", "path to the rig configuration file")
	flag.Parse()

	log.Println("starting rate-table console (MQTT subscriber)")

	if err := app.RunConsole(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
