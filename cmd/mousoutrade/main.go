// Command mousoutrade scans for vertical option spreads and tracks them
// through their trade lifecycle.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mousou2003/MouSouTrade-sub000/internal/cli"
	"github.com/mousou2003/MouSouTrade-sub000/internal/config"
	"github.com/mousou2003/MouSouTrade-sub000/internal/logging"
)

func main() {
	cfg, err := config.Load(cli.ConfigDirFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.LogConfig()
	logCfg.Output = os.Stderr
	logger := logging.NewLoggerWithConfig(logCfg)

	if err := cli.NewRootCmd(cfg, logger).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
