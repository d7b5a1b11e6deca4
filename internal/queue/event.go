// Package queue defines message payloads exchanged over the message
// broker and the consumer that feeds charging-station events into the
// reservation lifecycle.
package queue

// TransactionEvent is published by the OCPP transaction processor for
// every transaction start and stop.  The engine consumes it to drive
// the reservation lifecycle: a start with a badge matching a scheduled
// reservation consumes that reservation, a stop completes it.
type TransactionEvent struct {
    Kind              string `json:"kind"` // "started" or "stopped"
    ChargingStationID string `json:"chargingStationID"`
    ConnectorID       uint32 `json:"connectorID"`
    TransactionID     string `json:"transactionID"`
    IDTag             string `json:"idTag"`
    Timestamp         string `json:"timestamp"` // RFC3339
}

// Transaction event kinds.
const (
    TransactionStarted = "started"
    TransactionStopped = "stopped"
)

// StatusNotificationEvent reports a connector status change from the
// station (AVAILABLE, OCCUPIED, RESERVED, FAULTED, UNAVAILABLE).
type StatusNotificationEvent struct {
    ChargingStationID string `json:"chargingStationID"`
    ConnectorID       uint32 `json:"connectorID"`
    Status            string `json:"status"`
    ErrorCode         string `json:"errorCode,omitempty"`
    Timestamp         string `json:"timestamp"` // RFC3339
}
