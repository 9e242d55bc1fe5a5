/*
Package log provides structured logging for Dockhand built on zerolog.

A single global logger is initialized once at process startup and shared by
every component. Child loggers carry contextual fields so that every line
emitted during an orchestration operation can be traced back to the project,
service, or deployment it belongs to:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithDeployment(deployment.Hash)
	logger.Info().Str("image", def.Image()).Msg("provisioning workload")

Console output (human-readable, colorized) is used when JSONOutput is false,
which is the default for the CLI. JSON output is intended for when Dockhand
runs under a job executor that ships its logs elsewhere.
*/
package log
