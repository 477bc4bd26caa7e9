package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bgricker/matrixrun/internal/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues

	stringFlags := []struct {
		name string
		dst  *config.StringFlag
	}{
		{"provider", &values.Provider},
		{"format", &values.Format},
		{"log-level", &values.LogLevel},
		{"event", &values.Event},
		{"branch", &values.Branch},
		{"since", &values.Since},
		{"history", &values.HistoryPath},
		{"listen", &values.Listen},
	}
	for _, f := range stringFlags {
		if !changed(flags, f.name) {
			continue
		}
		v, err := flags.GetString(f.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", f.name, err)
		}
		*f.dst = config.StringFlag{Value: v, Set: true}
	}

	sliceFlags := []struct {
		name string
		dst  *config.SliceFlag
	}{
		{"workflow", &values.Workflows},
		{"job", &values.Jobs},
		{"only-step", &values.OnlySteps},
		{"skip-step", &values.SkipSteps},
		{"matrix", &values.Matrix},
		{"changed", &values.Changed},
	}
	for _, f := range sliceFlags {
		if !changed(flags, f.name) {
			continue
		}
		v, err := flags.GetStringArray(f.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", f.name, err)
		}
		*f.dst = config.SliceFlag{Values: append([]string{}, v...)}
	}

	boolFlags := []struct {
		name string
		dst  *config.BoolFlag
	}{
		{"dry-run", &values.DryRun},
		{"verbose", &values.Verbose},
		{"no-history", &values.NoHistory},
		{"allow-privileged", &values.AllowPrivileged},
	}
	for _, f := range boolFlags {
		if !changed(flags, f.name) {
			continue
		}
		v, err := flags.GetBool(f.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", f.name, err)
		}
		*f.dst = config.BoolFlag{Value: v, Set: true}
	}

	if changed(flags, "parallelism") {
		v, err := flags.GetInt("parallelism")
		if err != nil {
			return values, fmt.Errorf("parse --parallelism: %w", err)
		}
		values.Parallelism = config.IntFlag{Value: v, Set: true}
	}

	durationFlags := []struct {
		name string
		dst  *config.DurationFlag
	}{
		{"timeout", &values.DefaultTimeout},
		{"debounce", &values.Debounce},
	}
	for _, f := range durationFlags {
		if !changed(flags, f.name) {
			continue
		}
		v, err := flags.GetDuration(f.name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", f.name, err)
		}
		*f.dst = config.DurationFlag{Value: v, Set: true}
	}

	return values, nil
}

// changed reports whether a flag defined on this command was set explicitly.
// Command-specific flags such as --listen are absent elsewhere.
func changed(flags *pflag.FlagSet, name string) bool {
	return flags.Lookup(name) != nil && flags.Changed(name)
}
