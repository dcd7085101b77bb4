package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/urisubmit/urisubmit/internal/cli"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = ""
	commit  = ""
)

func versionString() string {
	v := strings.TrimSpace(version)
	c := strings.TrimSpace(commit)
	if v == "" {
		v = "dev"
		if c == "" {
			c = buildRevision()
		}
	}
	if c == "" || strings.Contains(v, c) {
		return v
	}
	if len(c) > 12 {
		c = c[:12]
	}
	return v + "+" + c
}

func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func main() {
	err := cli.NewRoot(versionString()).ExecuteContext(context.Background())
	if err == nil {
		return
	}
	var ee *cli.ExitError
	if errors.As(err, &ee) {
		if msg := ee.Message(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(ee.Code())
	}
	fmt.Fprintln(os.Stderr, "urisubmit:", err)
	os.Exit(1)
}
