package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/Anuj-afk/TimeTable-Generator/pkg/config"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/logger"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("timetable"),
		kong.Description("Build weekly teacher and class timetables from a requirements sheet."),
		kong.UsageOnError(),
		kong.Vars{"version": "v1.0.0"},
	)

	logr, err := logger.New(&config.Config{
		Env: config.EnvDevelopment,
		Log: config.LogConfig{Level: cli.LogLevel, Format: "console"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync() //nolint:errcheck

	if err := ctx.Run(logr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
