package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rate_table/internal/config"
	"github.com/relabs-tech/rate_table/internal/poslog"
	"github.com/relabs-tech/rate_table/internal/telemetry"
)

// RunConsole follows a test from another terminal: it subscribes to the
// rig's MQTT topics and prints live position records and state changes.
func RunConsole(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("console: MQTT_BROKER is not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	posToken := client.Subscribe(cfg.TopicPosition, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r poslog.Record
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: position unmarshal error: %v", err)
			return
		}

		fmt.Printf("[POS ]  t=%8.3fs  pos=%9.4f deg\n", r.Relative, r.Position)
	})
	posToken.Wait()
	if posToken.Error() != nil {
		return posToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPosition)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.StateMessage
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: state unmarshal error: %v", err)
			return
		}

		fmt.Printf("[STATE] %s\n", s.State)
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicState)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
