// Package mqtt provides the MQTT connector.
//
// Messages are received with QoS 1 (configurable) and acknowledged manually,
// after the pipeline handler returned nil. A message whose handler failed is
// left unacknowledged.
//
// Example:
//
//	mosquitto_pub -t catalog -f wines.csv
package mqtt
