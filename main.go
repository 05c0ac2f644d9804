package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/xander1421/yt-fs/cmd"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := cmd.Root(cmd.BuildInfo{Version: version, Commit: commit, Date: buildDate})
	if err := fang.Execute(context.Background(), root, fang.WithVersion(version), fang.WithCommit(commit)); err != nil {
		os.Exit(1)
	}
}
