package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnsmusic/rehearsal-booking/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "Asia/Bangkok", cfg.Timezone)
	assert.Equal(t, 180, cfg.MaxDurationMin)
	assert.Equal(t, 10, cfg.LeaderboardLimit)

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, 180*time.Minute, rules.MaxDuration)
	assert.Equal(t, 2, rules.HorizonDays)
	assert.Equal(t, 1, rules.CooldownDaysBefore)
	assert.Equal(t, 2, rules.CooldownDaysAfter)
	assert.Equal(t, "Asia/Bangkok", rules.Location.String())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	// GIVEN: A dotenv file and one variable already set in the environment
	// WHEN: Loading with that file
	// THEN: File values fill the gaps, the environment wins on overlap

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nPORT=9090\nHORIZON_DAYS=3\n"), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	t.Setenv("HORIZON_DAYS", "")
	os.Unsetenv("HORIZON_DAYS")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 3, cfg.HorizonDays)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err := config.Load("")
	assert.Error(t, err)

	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("MAX_DURATION_MIN", "0")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestParseBandTable(t *testing.T) {
	ids, err := config.ParseBandTable([]byte(`
version: "2024-06"
bands:
  "TNS  Band": TNS Band
  the garage: The Garage
`))
	require.NoError(t, err)
	assert.Equal(t, "2024-06", ids.Version())
	assert.Equal(t, 2, ids.Len())

	_, label := ids.Canonicalize("tns band")
	assert.Equal(t, "TNS Band", label)

	_, err = config.ParseBandTable([]byte("bands: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadBandTable_EmptyPath(t *testing.T) {
	ids, err := config.LoadBandTable("")
	require.NoError(t, err)
	assert.Equal(t, 0, ids.Len())
}

func TestNewLogger(t *testing.T) {
	cfg := config.App{LogLevel: "debug", LogFormat: "console"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogFormat = "xml"
	_, err = cfg.NewLogger()
	assert.Error(t, err)

	cfg = config.App{LogLevel: "loud", LogFormat: "json"}
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
