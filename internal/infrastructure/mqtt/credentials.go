package mqtt

import (
	"context"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

// Credentials is the resolved broker address and login a Session connects with.
type Credentials struct {
	URI      string
	Username string
	Password string
}

// String returns the URI and username, never the password.
func (c Credentials) String() string {
	if c.Username == "" {
		return c.URI
	}
	return c.Username + "@" + c.URI
}

// CredentialSource resolves which broker credentials a Session should use.
// It is consulted on the first connect and on every staleness renewal.
type CredentialSource interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a CredentialSource that always returns itself.
type StaticCredentials Credentials

// Resolve implements CredentialSource.
func (s StaticCredentials) Resolve(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// HostBroker holds the host-wide shared broker settings.
type HostBroker struct {
	ExternalBroker string
	Username       string
	Password       string
}

// CredentialProvider chooses between the host-wide shared broker and the
// per-plugin override.
//
// When UseHost is set and the host exposes an external broker, the host's
// credentials win. Otherwise the override is used. ErrNoBroker is returned
// when neither carries a URI.
type CredentialProvider struct {
	Host     HostBroker
	Override Credentials
	UseHost  bool
}

// NewCredentialProvider builds a provider from the MQTT config section.
func NewCredentialProvider(cfg config.MQTTConfig) *CredentialProvider {
	return &CredentialProvider{
		Host: HostBroker{
			ExternalBroker: cfg.HostBroker.ExternalBroker,
			Username:       cfg.HostBroker.Username,
			Password:       cfg.HostBroker.Password,
		},
		Override: Credentials{
			URI:      cfg.Broker.URI,
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		},
		UseHost: cfg.UseHostBroker,
	}
}

// Resolve implements CredentialSource.
func (p *CredentialProvider) Resolve(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	if p.UseHost && p.Host.ExternalBroker != "" {
		return Credentials{
			URI:      p.Host.ExternalBroker,
			Username: p.Host.Username,
			Password: p.Host.Password,
		}, nil
	}

	if p.Override.URI == "" {
		return Credentials{}, ErrNoBroker
	}

	return p.Override, nil
}
