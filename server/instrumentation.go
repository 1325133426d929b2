package server

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/parleyvoice/parley/server"

var logger = otelslog.NewLogger(scopeName)
