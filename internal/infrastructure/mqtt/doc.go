// Package mqtt provides the broker Session neolinkd uses to talk to neolink.
//
// This package manages:
//   - A lazily created paho transport with serialized (single-flight) connects
//   - Publishing with retained-value de-duplication and one forced-reconnect retry
//   - Exact-topic message dispatch through a Dispatcher
//   - The neolink topic naming scheme (TopicsFor)
//   - Broker credential resolution (CredentialProvider)
//
// # Architecture
//
// neolink exposes each camera under neolink/<camera>/{status,query,control}.
// One Session is shared by every camera adapter:
//
//	camera adapters -> Session.Publish -> broker -> neolink
//	neolink -> broker -> Session (paho router) -> Dispatcher -> camera adapters
//
// The Session never resubscribes on its own. Adapters re-subscribe from the
// SetOnConnect callback.
//
// # Security Considerations
//
//   - mqtts:// and wss:// brokers are dialled without certificate
//     verification, matching typical self-signed home brokers
//   - Passwords are never logged; Credentials.String omits them
//
// # Usage
//
//	session := mqtt.New(mqtt.OptionsFromConfig(cfg.MQTT), mqtt.NewCredentialProvider(cfg.MQTT))
//	defer session.Disconnect()
//
//	topics := mqtt.TopicsFor("Garage")
//	err := session.Subscribe(ctx, topics.MotionStatus, func(topic, payload string) {
//	    log.Printf("%s = %s", topic, payload)
//	})
//
//	// Retained, de-duplicated
//	err = session.Publish(ctx, topics.SirenControl, "on", true)
package mqtt
