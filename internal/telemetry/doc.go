// Package telemetry is the scheduler's dashboard-side collaborator.
//
// The scheduler publishes one Snapshot per tick and drains id-keyed cancel
// requests at the start of the next one. Table holds the latest snapshot
// for readers on other goroutines (the HTTP API) and queues their cancel
// requests. LogPublisher reports running-set changes to the log and Fanout
// lets several publishers observe the same scheduler.
package telemetry
