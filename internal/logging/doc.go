// Package logging builds the logrus loggers used across the app. Every
// component logs through an entry carrying a "component" field.
package logging
