// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "quarry",
		Subcommands: []*Command{
			{
				Name: "plan",
				Run: func(args []string) error {
					ran = append(ran, "plan")
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"plan"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ran) != 1 || ran[0] != "plan" {
		t.Errorf("ran = %v", ran)
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name:        "quarry",
		Subcommands: []*Command{{Name: "artifact", Run: func([]string) error { return nil }}},
	}

	err := root.Execute([]string{"artifcat"})
	if err == nil {
		t.Fatal("unknown command succeeded")
	}
	if !strings.Contains(err.Error(), `did you mean "artifact"`) {
		t.Errorf("error %q lacks suggestion", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var outputDir string
	var got []string
	command := &Command{
		Name: "archive",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("archive", pflag.ContinueOnError)
			flagSet.StringVarP(&outputDir, "output-dir", "o", "", "")
			return flagSet
		},
		Run: func(args []string) error {
			got = args
			return nil
		},
	}

	if err := command.Execute([]string{"-o", "/tmp/out", "slice-a", "slice-b"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outputDir != "/tmp/out" {
		t.Errorf("output-dir = %q", outputDir)
	}
	if len(got) != 2 || got[0] != "slice-a" {
		t.Errorf("positional args = %v", got)
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "archive",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("archive", pflag.ContinueOnError)
			flagSet.String("output-dir", "", "")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--output-dri", "x"})
	if err == nil {
		t.Fatal("unknown flag succeeded")
	}
	if !strings.Contains(err.Error(), "--output-dir") {
		t.Errorf("error %q lacks flag suggestion", err)
	}
}

func TestExecuteSubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "quarry",
		Subcommands: []*Command{{Name: "plan"}},
	}
	if err := root.Execute(nil); err == nil {
		t.Fatal("Execute with no args and no Run succeeded")
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "quarry",
		Summary: "build artifact tooling",
		Subcommands: []*Command{
			{Name: "plan", Summary: "show the build plan"},
			{Name: "package", Summary: "run the pipeline"},
		},
	}

	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()
	for _, want := range []string{"plan", "show the build plan", "package", "run the pipeline", "Commands:"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 2}
	if err.ExitCode() != 2 {
		t.Errorf("ExitCode = %d", err.ExitCode())
	}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("Error = %q", err.Error())
	}
}
