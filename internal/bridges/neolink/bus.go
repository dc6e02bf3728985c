package neolink

import (
	"context"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/mqtt"
)

// Bus is the slice of the MQTT session a camera needs.
// *mqtt.Session satisfies it.
type Bus interface {
	Publish(ctx context.Context, topic string, value any, retain bool) error
	SubscribeOwned(ctx context.Context, owner, topic string, handler mqtt.MessageHandler) error
	UnsubscribeOwned(ctx context.Context, owner, topic string) error
}

// Session is the shared MQTT session owned by the Provider.
type Session interface {
	Bus
	SetOnConnect(callback func())
	Connect(ctx context.Context, force bool) error
	IsConnected() bool
	Disconnect()
}

// Recorder receives camera telemetry. *influxdb.Client satisfies it.
type Recorder interface {
	RecordBattery(camera string, level float64)
	RecordMotion(camera string, active bool)
	RecordConnection(camera string, connected bool)
}

// Logger is the logging interface used by the adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) RecordBattery(string, float64) {}
func (noopRecorder) RecordMotion(string, bool)     {}
func (noopRecorder) RecordConnection(string, bool) {}
