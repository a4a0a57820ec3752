// Package utils holds small helpers shared by the service wiring.
package utils

import "go.uber.org/zap"

// NewLogger builds the service logger: human-readable console output in
// development, JSON in production.
func NewLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopmentConfig().Build()
	}
	return zap.NewProduction()
}
