package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "casewatch")

	cfg := LoadConfig()

	assert.Equal(t, "@every 5m", cfg.Escalation.Schedule)
	assert.Equal(t, 10*time.Second, cfg.Escalation.CaseTimeout)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, cfg.Escalation.BusinessHours.Days)
	assert.Equal(t, "08:00", cfg.Escalation.BusinessHours.Start)
	assert.Equal(t, "17:00", cfg.Escalation.BusinessHours.End)
	assert.Equal(t, 3, cfg.Notification.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ESCALATION_CASE_TIMEOUT", "30")
	t.Setenv("NOTIFY_WORKER_INTERVAL", "2m")
	t.Setenv("BUSINESS_HOLIDAYS", "2024-12-25, 2025-01-01,")
	t.Setenv("ESCALATION_ENABLED", "false")

	cfg := LoadConfig()

	assert.Equal(t, 30*time.Second, cfg.Escalation.CaseTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Notification.WorkerInterval)
	assert.Equal(t, []string{"2024-12-25", "2025-01-01"}, cfg.Escalation.BusinessHours.Holidays)
	assert.False(t, cfg.Escalation.Enabled)
}

func TestBusinessHoursValidate(t *testing.T) {
	base := BusinessHoursConfig{
		Start:    "08:00",
		End:      "17:00",
		Days:     []string{"mon", "fri"},
		Timezone: "UTC",
	}

	tests := []struct {
		name    string
		mutate  func(*BusinessHoursConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*BusinessHoursConfig) {}},
		{name: "end before start", mutate: func(b *BusinessHoursConfig) { b.End = "07:00" }, wantErr: "must be after start"},
		{name: "bad clock", mutate: func(b *BusinessHoursConfig) { b.Start = "8am" }, wantErr: "BUSINESS_HOURS_START"},
		{name: "no days", mutate: func(b *BusinessHoursConfig) { b.Days = nil }, wantErr: "at least one day"},
		{name: "bad day", mutate: func(b *BusinessHoursConfig) { b.Days = []string{"funday"} }, wantErr: "invalid weekday"},
		{name: "bad zone", mutate: func(b *BusinessHoursConfig) { b.Timezone = "Mars/Olympus" }, wantErr: "BUSINESS_TIMEZONE"},
		{name: "bad holiday", mutate: func(b *BusinessHoursConfig) { b.Holidays = []string{"25/12/2024"} }, wantErr: "invalid date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := base
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_RequiresDatabase(t *testing.T) {
	cfg := LoadConfig()
	cfg.Database = DatabaseConfig{}
	assert.Error(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "3306", User: "app", Password: "pw", DBName: "casewatch"}
	dsn := c.DSN()
	assert.True(t, strings.HasPrefix(dsn, "app:pw@tcp(db:3306)/casewatch?"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")

	c.DatabaseURL = "u:p@tcp(x:1)/y"
	assert.Equal(t, "u:p@tcp(x:1)/y", c.DSN())
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)
}
