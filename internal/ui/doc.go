// Package ui renders command lifecycle events and workflow reports for people
// reading a terminal, while structured logs keep flowing through zap.
package ui
