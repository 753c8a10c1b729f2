// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


// Package telemetry publishes live test data over MQTT so the console and
// web viewers can follow a run without touching the serial link or the log
// file.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/rate_table/internal/poslog"
)

// Publisher receives live samples and run-state transitions. Publishing is
// fire-and-forget: a slow broker must never stall the sampling loop.
type Publisher interface {
	PublishSample(poslog.Record)
	PublishState(state string)
	Close()
}

// StateMessage is the payload on the state topic.
type StateMessage struct {
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

// Nop is the publisher used when no broker is configured.
type Nop struct{}

func (Nop) PublishSample(poslog.Record) {}
func (Nop) PublishState(string)         {}
func (Nop) Close()                      {}

// MQTT publishes to a broker, one topic for position records and one for
// run-state transitions.
type MQTT struct {
	client        mqtt.Client
	topicPosition string
	topicState    string
}

// Connect dials the broker. The rig works fine without telemetry, so the
// caller decides whether a connect failure is fatal.
func Connect(broker, clientID, topicPosition, topicState string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	log.Printf("telemetry: connected to MQTT broker at %s", broker)

	return &MQTT{
		client:        client,
		topicPosition: topicPosition,
		topicState:    topicState,
	}, nil
}

func (m *MQTT) PublishSample(r poslog.Record) {
	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("telemetry: sample marshal error: %v", err)
		return
	}
	m.client.Publish(m.topicPosition, 0, true, payload)
}

func (m *MQTT) PublishState(state string) {
	payload, err := json.Marshal(StateMessage{State: state, Time: time.Now()})
	if err != nil {
		log.Printf("telemetry: state marshal error: %v", err)
		return
	}
	m.client.Publish(m.topicState, 0, true, payload)
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
