// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rate_table/internal/config"
	"github.com/relabs-tech/rate_table/internal/poslog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RunWeb serves a live position view: the latest record over a JSON API
// and a per-sample push to browsers over a websocket, both fed from the
// rig's MQTT position topic.
func RunWeb(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("web: MQTT_BROKER is not configured")
	}

	var (
		mu         sync.RWMutex
		lastRecord poslog.Record
		haveRecord bool
	)

	var clientsMu sync.Mutex
	clients := make(map[*websocket.Conn]bool)

	broadcast := func(payload []byte) {
		clientsMu.Lock()
		defer clientsMu.Unlock()
		for conn := range clients {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				delete(clients, conn)
			}
		}
	}

	// 1) Connect to the MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-web")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to the position topic; remember and rebroadcast
	token := client.Subscribe(cfg.TopicPosition, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r poslog.Record
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("web: payload unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastRecord = r
		haveRecord = true
		mu.Unlock()

		broadcast(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicPosition)

	// 3) JSON API endpoint: latest position
	http.HandleFunc("/api/position", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveRecord {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastRecord); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 4) Websocket push of every live sample
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}

		clientsMu.Lock()
		clients[conn] = true
		clientsMu.Unlock()

		// Drain client frames until the connection drops.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					clientsMu.Lock()
					delete(clients, conn)
					clientsMu.Unlock()
					conn.Close()
					return
				}
			}
		}()
	})

	// 5) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
