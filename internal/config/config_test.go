package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateClampsSweepIntervals(t *testing.T) {
	t.Setenv("EXPIRY_SWEEP_INTERVAL_SECONDS", "0")
	t.Setenv("ACTIVATION_SWEEP_INTERVAL_SECONDS", "-5")

	cfg := Load()
	require.Zero(t, cfg.ExpirySweepInterval)
	require.Equal(t, -5*time.Second, cfg.ActivationSweepInterval)

	core, logs := observer.New(zapcore.WarnLevel)
	cfg.Validate(zap.New(core))
	require.Equal(t, DefaultExpirySweepInterval, cfg.ExpirySweepInterval)
	require.Equal(t, DefaultActivationSweepInterval, cfg.ActivationSweepInterval)
	require.Equal(t, 1, logs.FilterMessageSnippet("EXPIRY_SWEEP_INTERVAL_SECONDS").Len())
	require.Equal(t, 1, logs.FilterMessageSnippet("ACTIVATION_SWEEP_INTERVAL_SECONDS").Len())

	// The clamped values are safe to hand to a ticker.
	ticker := time.NewTicker(cfg.ExpirySweepInterval)
	ticker.Stop()
}

func TestValidateKeepsPositiveIntervals(t *testing.T) {
	t.Setenv("EXPIRY_SWEEP_INTERVAL_SECONDS", "30")
	t.Setenv("ACTIVATION_SWEEP_INTERVAL_SECONDS", "")

	cfg := Load()
	cfg.Validate(zap.NewNop())
	require.Equal(t, 30*time.Second, cfg.ExpirySweepInterval)
	require.Equal(t, DefaultActivationSweepInterval, cfg.ActivationSweepInterval)
}

func TestValidateSubmissionWindow(t *testing.T) {
	tests := []struct {
		name      string
		hours     string
		want      time.Duration
		wantWarns int
	}{
		{"default", "", DefaultSubmissionWindow, 0},
		{"seven days", "168", DefaultSubmissionWindow, 0},
		{"non-standard", "48", 48 * time.Hour, 1},
		{"zero", "0", DefaultSubmissionWindow, 1},
		{"negative", "-1", DefaultSubmissionWindow, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ESCROW_SUBMISSION_WINDOW_HOURS", tt.hours)

			cfg := Load()
			core, logs := observer.New(zapcore.WarnLevel)
			cfg.Validate(zap.New(core))
			require.Equal(t, tt.want, cfg.SubmissionWindow)
			require.Equal(t, tt.wantWarns, logs.FilterMessageSnippet("ESCROW_SUBMISSION_WINDOW_HOURS").Len())
		})
	}
}

func TestAdminUserIDs(t *testing.T) {
	admin := uuid.New()
	t.Setenv("ADMIN_USER_IDS", " "+admin.String()+", not-a-uuid,,12345 ")

	cfg := Load()
	require.Equal(t, []uuid.UUID{admin}, cfg.AdminUserIDs)
	require.True(t, cfg.IsAdmin(admin))
	require.False(t, cfg.IsAdmin(uuid.New()))

	core, logs := observer.New(zapcore.WarnLevel)
	cfg.Validate(zap.New(core))

	var skipped []string
	for _, entry := range logs.FilterMessage("ignoring malformed ADMIN_USER_IDS entry").All() {
		skipped = append(skipped, entry.ContextMap()["entry"].(string))
	}
	require.Equal(t, []string{"not-a-uuid", "12345"}, skipped)
}

func TestValidateDisputePolicy(t *testing.T) {
	t.Setenv("DISPUTE_RESOLUTION_POLICY", "coin-flip")

	cfg := Load()
	cfg.Validate(zap.NewNop())
	require.Equal(t, DisputePolicyRestore, cfg.DisputeResolutionPolicy)
}
