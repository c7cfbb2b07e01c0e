package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dvloznov/monzo-export/internal/auth"
	"github.com/dvloznov/monzo-export/internal/monzo"
	"github.com/dvloznov/monzo-export/internal/storage"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"state mismatch", fmt.Errorf("Login: %w", auth.ErrStateMismatch), exitAuth},
		{"auth rejected", fmt.Errorf("Login: %w", auth.ErrAuthentication), exitAuth},
		{"not logged in", errNotLoggedIn, exitAuth},
		{"api unauthorized", &monzo.APIError{StatusCode: 401}, exitAuth},
		{"api unavailable", fmt.Errorf("pipeline step 1 failed: %w", &monzo.APIError{StatusCode: 503}), exitUnavailable},
		{"token endpoint unavailable", auth.ErrServiceUnavailable, exitUnavailable},
		{"storage failure", fmt.Errorf("Load accounts: %w", errors.New("permission denied")), exitFailure},
		{"not found is still a failure here", storage.ErrNotFound, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
