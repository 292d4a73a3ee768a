// Package autoload initializes the global logger from LOG_* variables on import.
package autoload

import (
	configx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/config"
	logx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
