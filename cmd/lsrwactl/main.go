package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"LSRWA-Express/internal/cli"
	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/pkg/logger"
)

// main 是 lsrwactl 命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:], cli.Options{})
	stop()

	if err != nil {
		logger.L().Error("lsrwactl 执行失败",
			"code", xerrors.CodeOf(err),
			"severity", xerrors.SeverityOf(err),
			"error", err)
	}
	_ = logger.Sync()
	os.Exit(xerrors.ExitCode(err))
}
