// Package domain defines the core types of the cvswatch monitoring dashboard.
//
// # Core Types
//
// Node is a monitored location or physical sensor. Its Kind tags whether it was
// seeded from configuration (NodeKindConfigured) or synthesized from a connected
// sensor by device discovery (NodeKindDevice), so merge and removal logic can
// branch on the variant instead of on id conventions.
//
// Features holds the 11 normalized attributes that the external scoring service
// consumes. Score and Status are written only from a scoring response.
//
// Snapshot is an immutable, versioned list of nodes plus the device readings
// that produced it. Views always render from exactly one snapshot.
//
// # Devices
//
// GatewayReport is the decoded device gateway payload. SensorClass maps a
// reported sensor class onto a fixed node id, coordinates and feature attribute.
//
// # Errors
//
// Sentinel errors describe the recoverable failure taxonomy: scoring and
// discovery outages, a rendering backend that is not ready yet, and the guards
// that keep the store consistent.
package domain
