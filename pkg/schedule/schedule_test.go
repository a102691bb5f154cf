package schedule

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/drivecheck/pkg/db"
	"github.com/mscrnt/drivecheck/pkg/plugin"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "drivecheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 3 * * 1", "@hourly", "@daily"} {
		_, err := ParseCron(expr)
		assert.NoError(t, err, expr)
	}
	for _, expr := range []string{"", "* * *", "61 * * * *", "0 0 0 * * *"} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestStoreCRUD(t *testing.T) {
	store := NewStore(openTestDB(t))
	fixed := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	s := &Schedule{
		Name:     "nightly-sda",
		CronExpr: "0 2 * * *",
		Check:    "smart",
		Device:   "/dev/sda",
		Params:   db.JSONData{"max_temperature": 50.0},
		Enabled:  true,
	}
	require.NoError(t, store.Create(s))
	assert.Positive(t, s.ID)
	require.NotNil(t, s.NextRunTime)
	assert.True(t, s.NextRunTime.Equal(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)))

	got, err := store.GetByName("nightly-sda")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "smart", got.Check)
	assert.Equal(t, "/dev/sda", got.Device)
	assert.Equal(t, 50.0, got.Params["max_temperature"])
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunID)

	got.CronExpr = "30 * * * *"
	got.Device = "/dev/sdb"
	require.NoError(t, store.Update(got))

	got, err = store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdb", got.Device)
	require.NotNil(t, got.NextRunTime)
	assert.True(t, got.NextRunTime.Equal(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)))

	require.NoError(t, store.Disable(s.ID))
	enabled := true
	active, err := store.List(Filter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, store.Enable(s.ID))
	active, err = store.List(Filter{Enabled: &enabled, Check: "smart"})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.Delete(s.ID))
	_, err = store.Get(s.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.ErrorIs(t, store.Delete(s.ID), db.ErrNotFound)
}

func TestStoreCreateValidation(t *testing.T) {
	store := NewStore(openTestDB(t))

	assert.Error(t, store.Create(&Schedule{Name: "x", Check: "smart", CronExpr: "bogus"}))
	assert.Error(t, store.Create(&Schedule{Check: "smart", CronExpr: "@hourly"}))
	assert.Error(t, store.Create(&Schedule{Name: "x", CronExpr: "@hourly"}))

	require.NoError(t, store.Create(&Schedule{Name: "x", Check: "smart", CronExpr: "@hourly"}))
	assert.Error(t, store.Create(&Schedule{Name: "x", Check: "smart", CronExpr: "@hourly"}), "names are unique")
}

func TestStoreGetDue(t *testing.T) {
	store := NewStore(openTestDB(t))
	start := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	store.now = func() time.Time { return start }

	require.NoError(t, store.Create(&Schedule{Name: "minutely", Check: "smart", CronExpr: "* * * * *", Enabled: true}))
	require.NoError(t, store.Create(&Schedule{Name: "daily", Check: "smart", CronExpr: "@daily", Enabled: true}))
	require.NoError(t, store.Create(&Schedule{Name: "off", Check: "smart", CronExpr: "* * * * *"}))

	store.now = func() time.Time { return start.Add(2 * time.Minute) }
	due, err := store.GetDue()
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "minutely", due[0].Name)
	assert.True(t, due[0].ShouldRun(start.Add(2*time.Minute)))
}

func TestScheduleShouldRun(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.False(t, (&Schedule{}).ShouldRun(now))
	assert.True(t, (&Schedule{Enabled: true}).ShouldRun(now))
	assert.True(t, (&Schedule{Enabled: true, LastRunTime: &past, NextRunTime: &past}).ShouldRun(now))
	assert.False(t, (&Schedule{Enabled: true, LastRunTime: &past, NextRunTime: &future}).ShouldRun(now))
	assert.False(t, (&Schedule{NextRunTime: &past}).IsOverdue(now))
}

func TestRunnerExecuteRecordsRun(t *testing.T) {
	database := openTestDB(t)

	var gotName string
	var gotParams plugin.Params
	exec := func(_ context.Context, name string, params plugin.Params) (plugin.Result, error) {
		gotName, gotParams = name, params
		r := plugin.Result{StartTime: time.Now(), Success: true}
		r.Record("temperature", 41, "°C")
		r.Record("194_Temperature_Celsius.raw", 41, "")
		r.Fail("attribute 5 (Reallocated_Sector_Ct) at threshold")
		r.EndTime = time.Now()
		return r, nil
	}

	runner := NewRunner(database, quietLogger(), WithExecutor(exec))
	s := &Schedule{
		Name:     "sda",
		CronExpr: "@hourly",
		Check:    "smart",
		Device:   "/dev/sda",
		Params:   db.JSONData{"max_temperature": 45.0},
		Enabled:  true,
	}
	require.NoError(t, runner.Store().Create(s))

	run, err := runner.Execute(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, "smart", gotName)
	assert.Equal(t, "/dev/sda", gotParams.Device)
	assert.Equal(t, 45.0, gotParams.Config["max_temperature"])

	stored, err := database.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, db.RunStatusFailed, stored.GetStatus())
	assert.Equal(t, db.StringList{"attribute 5 (Reallocated_Sector_Ct) at threshold"}, stored.Findings)

	results, err := database.GetResults(run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "temperature", results[0].Metric)
	assert.Equal(t, "°C", results[0].Unit)

	updated, err := runner.Store().Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastRunID)
	assert.Equal(t, run.ID, *updated.LastRunID)
	assert.NotNil(t, updated.LastRunTime)
}

func TestRunnerExecuteError(t *testing.T) {
	database := openTestDB(t)
	exec := func(context.Context, string, plugin.Params) (plugin.Result, error) {
		return plugin.Result{}, errors.New("check \"nope\" not found")
	}
	runner := NewRunner(database, quietLogger(), WithExecutor(exec))

	run, err := runner.Execute(context.Background(), &Schedule{Name: "adhoc", Check: "nope"})
	require.NoError(t, err)

	stored, err := database.GetRun(run.ID)
	require.NoError(t, err)
	assert.False(t, stored.Success)
	assert.Equal(t, "check \"nope\" not found", stored.Error)
	require.NotNil(t, stored.EndTime)
}

func TestRunnerExecuteRecoversPanic(t *testing.T) {
	exec := func(context.Context, string, plugin.Params) (plugin.Result, error) {
		panic("boom")
	}
	runner := NewRunner(openTestDB(t), quietLogger(), WithExecutor(exec))

	_, err := runner.Execute(context.Background(), &Schedule{Name: "bad", Check: "smart"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunnerStartRegistersEnabled(t *testing.T) {
	database := openTestDB(t)
	runner := NewRunner(database, quietLogger(), WithExecutor(func(context.Context, string, plugin.Params) (plugin.Result, error) {
		return plugin.Result{Success: true}, nil
	}))

	store := runner.Store()
	require.NoError(t, store.Create(&Schedule{Name: "a", Check: "smart", CronExpr: "@hourly", Enabled: true}))
	require.NoError(t, store.Create(&Schedule{Name: "b", Check: "smart", CronExpr: "@daily"}))
	c := &Schedule{Name: "c", Check: "inventory", CronExpr: "*/10 * * * *", Enabled: true}
	require.NoError(t, store.Create(c))

	require.NoError(t, runner.Start())
	defer runner.Stop(time.Second)
	assert.Len(t, runner.ListJobs(), 2)

	runner.UnregisterSchedule(c.ID)
	assert.Len(t, runner.ListJobs(), 1)

	require.NoError(t, runner.RefreshSchedule(c.ID))
	assert.Len(t, runner.ListJobs(), 2)

	require.NoError(t, store.Disable(c.ID))
	require.NoError(t, runner.RefreshSchedule(c.ID))
	assert.Len(t, runner.ListJobs(), 1)
}

func TestRunnerCheckDue(t *testing.T) {
	database := openTestDB(t)
	calls := 0
	runner := NewRunner(database, quietLogger(), WithExecutor(func(context.Context, string, plugin.Params) (plugin.Result, error) {
		calls++
		return plugin.Result{Success: true}, nil
	}))

	start := time.Now().Add(-time.Hour)
	runner.Store().now = func() time.Time { return start }
	require.NoError(t, runner.Store().Create(&Schedule{Name: "m", Check: "smart", CronExpr: "* * * * *", Enabled: true}))
	runner.Store().now = time.Now

	n, err := runner.CheckDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)

	n, err = runner.CheckDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "next run advanced past now")
}
