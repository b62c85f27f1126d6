package main

import (
	"context"
	"testing"
)

func TestDispatch_UnknownCommandIsUsageError(t *testing.T) {
	err := dispatch(context.Background(), "bogus", nil)
	if err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
	if !isUsageError(err) {
		t.Fatalf("expected unknown command to be a usage error, got %v", err)
	}
}

func TestDispatch_TokensMissingSubcommandIsUsageError(t *testing.T) {
	err := dispatch(context.Background(), "tokens", nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !isUsageError(err) {
		t.Fatalf("expected missing tokens subcommand to be a usage error, got %v", err)
	}
}
