package mqtt

import "fmt"

// Topic prefixes for the conmux MQTT namespace.
//
// Console topics use the scheme: conmux/{node}/console/{name}/{direction}
// where direction is "out" (console output) or "in" (input for the console).
const (
	// TopicPrefix is the base for all conmux topics.
	TopicPrefix = "conmux"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "conmux/system"
)

// Topics provides builders for conmux MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	outTopic := topics.ConsoleOut("node-001", "guest0")
//	// Returns: "conmux/node-001/console/guest0/out"
type Topics struct{}

// ConsoleOut returns the topic a console's output stream is published to.
//
// Example: conmux/node-001/console/guest0/out
func (Topics) ConsoleOut(node, console string) string {
	return fmt.Sprintf("%s/%s/console/%s/out", TopicPrefix, node, console)
}

// ConsoleIn returns the topic input for a console is received on.
//
// Example: conmux/node-001/console/guest0/in
func (Topics) ConsoleIn(node, console string) string {
	return fmt.Sprintf("%s/%s/console/%s/in", TopicPrefix, node, console)
}

// AllConsoleOut returns a wildcard pattern matching every console's output
// on every node.
//
// Example: conmux/+/console/+/out
func (Topics) AllConsoleOut() string {
	return fmt.Sprintf("%s/+/console/+/out", TopicPrefix)
}

// NodeConsoles returns a wildcard pattern matching all console traffic for
// one node.
//
// Example: conmux/node-001/console/#
func (Topics) NodeConsoles(node string) string {
	return fmt.Sprintf("%s/%s/console/#", TopicPrefix, node)
}

// SystemStatus returns the daemon status topic used for LWT and
// online/offline announcements.
//
// Example: conmux/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
