// Package logger builds the charmbracelet/log loggers used across semrag.
// Output goes to stderr so it never mixes with the MCP stdio stream.
package logger
