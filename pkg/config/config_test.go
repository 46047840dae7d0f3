package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"present", "late", "makeup"}, splitAndTrim("present, late ,makeup"))
	assert.Equal(t, []string{"one"}, splitAndTrim("one,,  ,"))
}

func TestPairMap(t *testing.T) {
	aliases := pairMap("studying=active, hoc_thu=trial,broken,=x,y=")
	assert.Equal(t, map[string]string{
		"studying": "active",
		"hoc_thu":  "trial",
	}, aliases)
	assert.Empty(t, pairMap(""))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 30*time.Minute, parseDuration("30m", time.Hour))
	assert.Equal(t, time.Hour, parseDuration("", time.Hour))
	assert.Equal(t, time.Hour, parseDuration("soon", time.Hour))
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := "PORT=9090\n" +
		"STORE_DRIVER=memory\n" +
		"STORE_BATCH_LIMIT=100\n" +
		"BILLING_SESSION_RATE=175000\n" +
		"STUDENT_STATUS_ALIASES=studying=active\n" +
		"ATTENDANCE_PRESENT_STATUSES=present\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 100, cfg.Store.BatchLimit)
	assert.Equal(t, int64(175000), cfg.Billing.SessionRate)
	assert.Equal(t, map[string]string{"studying": "active"}, cfg.Statuses.Aliases)
	assert.Equal(t, []string{"present"}, cfg.Attendance.PresentStatuses)

	// Defaults fill everything the file does not set.
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 10, cfg.Store.InLimit)
	assert.Equal(t, 22, cfg.Billing.WorkDaysPerMonth)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.DailyRecomputeInterval)
	assert.Contains(t, cfg.Salary.Positions, "foreign_teacher")
}
