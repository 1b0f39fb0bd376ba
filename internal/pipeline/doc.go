// Package pipeline wires table provisioning and ingestion into the etl_dummy_data task graph.
// A Pipeline runs once per call; scheduling and retries belong to the caller.
package pipeline
