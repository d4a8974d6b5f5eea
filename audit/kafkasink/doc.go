// Package kafkasink forwards authgate audit events to a Kafka topic as JSON.
//
// The sink runs on the engine's audit dispatcher goroutine, so a slow broker delays
// other sinks but never a request. Each write is bounded by the dispatcher's
// per-event context plus the sink's own WriteTimeout.
//
// Messages are keyed by user id when one is present so one user's events land on
// one partition in order.
package kafkasink
