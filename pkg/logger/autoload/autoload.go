// Package autoload configures the global logger from the environment as a
// side effect of being imported.
package autoload

import (
	"github.com/polaris-nbfc/loan-agent/pkg/config"
	"github.com/polaris-nbfc/loan-agent/pkg/logger"
)

func init() {
	logger.Setup(*config.MustNew[logger.Config](""))
}
