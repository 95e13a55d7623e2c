package utils

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

var Logger hclog.Logger

func init() {
	Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "policy-analyzer",
		Level:  hclog.Info,
		Output: os.Stderr,
	})
}

func SetDebugLogging() {
	Logger.SetLevel(hclog.Debug)
}
