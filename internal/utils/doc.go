// Package utils exposes reusable helpers consumed by the gitpublish commands.
//
// ConfigurationLoader layers embedded defaults, a configuration file and
// environment variables through Viper. LoggerFactory builds zap loggers in
// structured or console form. CommandContextAccessor carries the resolved
// workspace path between Cobra commands.
package utils
