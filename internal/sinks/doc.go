// Package sinks holds the notification destinations that receive relay
// outcomes besides the downstream consumer.
package sinks
