package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

func TestCredentialProvider_Resolve(t *testing.T) {
	host := HostBroker{ExternalBroker: "mqtt://host-broker:1883", Username: "host", Password: "hostpw"}
	override := Credentials{URI: "mqtt://plugin-broker:1883", Username: "plugin", Password: "pluginpw"}

	tests := []struct {
		name     string
		provider CredentialProvider
		wantURI  string
		wantUser string
		wantErr  error
	}{
		{
			name:     "host broker preferred when enabled",
			provider: CredentialProvider{Host: host, Override: override, UseHost: true},
			wantURI:  host.ExternalBroker,
			wantUser: "host",
		},
		{
			name:     "override when host disabled",
			provider: CredentialProvider{Host: host, Override: override},
			wantURI:  override.URI,
			wantUser: "plugin",
		},
		{
			name:     "override when host has no broker",
			provider: CredentialProvider{Override: override, UseHost: true},
			wantURI:  override.URI,
			wantUser: "plugin",
		},
		{
			name:     "nothing configured",
			provider: CredentialProvider{UseHost: true},
			wantErr:  ErrNoBroker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := tt.provider.Resolve(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if creds.URI != tt.wantURI || creds.Username != tt.wantUser {
				t.Errorf("Resolve() = %+v, want %s as %s", creds, tt.wantURI, tt.wantUser)
			}
		})
	}
}

func TestCredentialProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := CredentialProvider{Override: Credentials{URI: "mqtt://b:1883"}}
	if _, err := p.Resolve(ctx); err == nil {
		t.Error("Resolve() with cancelled context = nil error")
	}
}

func TestNewCredentialProvider(t *testing.T) {
	p := NewCredentialProvider(config.MQTTConfig{
		Broker:        config.MQTTBrokerConfig{URI: "mqtt://plugin:1883"},
		Auth:          config.MQTTAuthConfig{Username: "u", Password: "p"},
		HostBroker:    config.HostBrokerConfig{ExternalBroker: "mqtt://host:1883"},
		UseHostBroker: true,
	})

	creds, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if creds.URI != "mqtt://host:1883" {
		t.Errorf("URI = %q, want host broker", creds.URI)
	}
}

func TestCredentials_StringOmitsPassword(t *testing.T) {
	s := Credentials{URI: "mqtt://b:1883", Username: "u", Password: "topsecret"}.String()
	if strings.Contains(s, "topsecret") {
		t.Errorf("String() = %q leaks password", s)
	}
}
