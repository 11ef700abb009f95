// Package telemetry configures OpenTelemetry tracing for the filedrop CLI.
package telemetry
