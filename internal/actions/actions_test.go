package actions

import (
	"context"
	"testing"
)

func TestShellCommandHonorsShellOverride(t *testing.T) {
	cmd := shellCommand(context.Background(), "echo hi", map[string]string{"SHELL": "/bin/dash"})
	if cmd.Path != "/bin/dash" && cmd.Args[0] != "/bin/dash" {
		t.Fatalf("expected shell override to be honored, got %+v", cmd.Args)
	}
}

func TestDecodeCargoOptionsDefaultsToBuild(t *testing.T) {
	opts, err := DecodeCargoOptions("")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if opts.Subcommand != "build" {
		t.Fatalf("expected default subcommand build, got %q", opts.Subcommand)
	}
}

func TestDecodeCargoOptionsParsesJSON(t *testing.T) {
	opts, err := DecodeCargoOptions(`{"subcommand":"test","package":["foo"],"release":true}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	args := opts.Args()
	if args[0] != "test" {
		t.Fatalf("expected subcommand test, got %q", args[0])
	}
	found := false
	for _, a := range args {
		if a == "--release" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --release in args: %+v", args)
	}
}

func TestDecodeCargoOptionsRejectsInvalidJSON(t *testing.T) {
	if _, err := DecodeCargoOptions("not json"); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}
