// Package dispatch implements the coordinator at the root of the waste
// collection engine.
//
// The coordinator consumes bin telemetry and driver requests through one
// ordered intake queue so that the classification-and-dispatch decision for
// a bin is never interleaved with a concurrent decision for the same bin.
// For each update it ingests the snapshot into the bin registry, classifies
// the state change, and either auto-dispatches an emergency route or
// accumulates the bin in the routine candidate pool consumed on driver
// request.
//
// Key components:
//   - Coordinator: owns the intake loop and wires registry, classifier,
//     optimizer, lifecycle manager and capacity tracker together.
//   - Pool: the routine candidate pool.
//   - Roster: round-robin driver selection for emergency auto-dispatch.
//   - Notifier: the outbound notification sink, implemented over MQTT.
//
// Driver actions that touch a single route or vehicle (start, collect,
// complete, cancel, dispose) bypass the queue; the lifecycle manager and
// capacity tracker serialize per entity.
package dispatch
