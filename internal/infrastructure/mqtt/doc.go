// Package mqtt provides MQTT client connectivity for conmux.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// conmux uses MQTT to expose console streams beyond the local host.
// Each MQTT-backed console publishes its output to a topic and receives
// input from another, so remote tooling can drive a guest console
// without talking to the HTTP API.
//
//	conmux ↔ MQTT Broker ↔ remote consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Receive input destined for a console
//	err = client.Subscribe(mqtt.Topics{}.ConsoleIn("node-001", "guest0"), 1,
//	    func(topic string, payload []byte) error {
//	        _, err := reg.OutDirect(dev, payload)
//	        return err
//	    })
//
//	// Publish console output
//	client.Publish(mqtt.Topics{}.ConsoleOut("node-001", "guest0"), data, 1, false)
package mqtt
