/*
Package logger builds the zap loggers used across entitywork: the process logger from
configuration (optionally rotating files through lumberjack), an adapter that routes gorm's
statement log into zap, and Timed for logging how long a scope took.
*/
package logger
