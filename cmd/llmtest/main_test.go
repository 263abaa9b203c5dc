package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		envFile string
		runTUI  bool
	}{
		{name: "no args", args: nil, runTUI: true},
		{name: "env equals only", args: []string{"--env=.env.local"}, envFile: ".env.local", runTUI: true},
		{name: "env value only", args: []string{"--env", ".env.ci"}, envFile: ".env.ci", runTUI: true},
		{name: "subcommand", args: []string{"list-runs"}, runTUI: false},
		{name: "subcommand with arg", args: []string{"run", "suite.yaml"}, runTUI: false},
		{name: "env and subcommand", args: []string{"--env", ".env.ci", "run", "suite.yaml"}, envFile: ".env.ci", runTUI: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			envFile, runTUI := parseArgs(tt.args)
			assert.Equal(t, tt.envFile, envFile)
			assert.Equal(t, tt.runTUI, runTUI)
		})
	}
}
