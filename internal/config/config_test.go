package config

import "testing"

func TestValidateRequiresSecretOutsideDev(t *testing.T) {
	cfg := &Config{
		Env:                    "production",
		ReminderLeadMinutes:    15,
		GracePeriodMinutes:     30,
		MaterializeHorizonDays: 7,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing AUTH_SECRET in production")
	}

	cfg.AuthSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAllowsDevWithoutSecret(t *testing.T) {
	cfg := &Config{
		Env:                    "development",
		ReminderLeadMinutes:    15,
		GracePeriodMinutes:     30,
		MaterializeHorizonDays: 7,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadWindows(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero reminder lead", func(c *Config) { c.ReminderLeadMinutes = 0 }},
		{"negative grace period", func(c *Config) { c.GracePeriodMinutes = -1 }},
		{"zero horizon", func(c *Config) { c.MaterializeHorizonDays = 0 }},
		{"smtp host without from", func(c *Config) { c.SMTPHost = "smtp.example.com" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Env:                    "development",
				ReminderLeadMinutes:    15,
				GracePeriodMinutes:     30,
				MaterializeHorizonDays: 7,
			}
			tc.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{ReminderLeadMinutes: 15, GracePeriodMinutes: 30}
	if got := cfg.ReminderLead().Minutes(); got != 15 {
		t.Fatalf("ReminderLead = %v minutes, want 15", got)
	}
	if got := cfg.GracePeriod().Minutes(); got != 30 {
		t.Fatalf("GracePeriod = %v minutes, want 30", got)
	}
}
