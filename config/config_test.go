package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/goosea/translate"
)

func TestDefault(t *testing.T) {
	assert := assert.New(t)

	cfg := Default()
	assert.NoError(cfg.Validate())
	assert.Equal(uint64(DEFAULT_MEMORY_SIZE), cfg.Memory.Size)
	assert.Equal(uint64(DEFAULT_THRESHOLD), cfg.Optimizer.Threshold)
	assert.Equal(DEFAULT_INTERVAL, cfg.Optimizer.Interval)
	assert.Equal(1, cfg.Run.Sessions)
	assert.Equal(1, cfg.Run.Rounds)
	assert.False(cfg.Run.Verbose)
}

func TestDecode(t *testing.T) {
	assert := assert.New(t)

	text := `
language = "en-US"

[memory]
size = 65536

[optimizer]
threshold = 4
interval = "250us"

[run]
sessions = 3
rounds = 10
verbose = true
`

	cfg, err := Decode(strings.NewReader(text))
	assert.NoError(err)
	if err != nil {
		return
	}

	assert.Equal("en-US", cfg.Language)
	assert.Equal(uint64(65536), cfg.Memory.Size)
	assert.Equal(uint64(4), cfg.Optimizer.Threshold)
	assert.Equal(250*time.Microsecond, cfg.Optimizer.Interval)
	assert.Equal(3, cfg.Run.Sessions)
	assert.Equal(10, cfg.Run.Rounds)
	assert.True(cfg.Run.Verbose)

	cfg.Apply()
	defer translate.SetLanguage()
	assert.Equal("session count must be positive", ErrSessions.Error())
}

func TestDecodeErrors(t *testing.T) {
	assert := assert.New(t)

	table := [...]struct {
		text string
		err  error
	}{
		{"[memory]\nsize = 100\n", ErrMemorySize},
		{"[memory]\nsize = 0\n", ErrMemorySize},
		{"[memory]\nsize = 0x20000000\n", ErrMemorySize},
		{"[run]\nsessions = 0\n", ErrSessions},
		{"[run]\nrounds = -1\n", ErrRounds},
		{"[optimizer]\ninterval = \"0s\"\n", ErrInterval},
	}

	for _, entry := range table {
		cfg, err := Decode(strings.NewReader(entry.text))
		assert.ErrorIs(err, entry.err, entry.text)
		assert.Nil(cfg, entry.text)
	}

	_, err := Decode(strings.NewReader("[memory\n"))
	assert.Error(err)

	// A disabled optimizer needs no interval.
	_, err = Decode(strings.NewReader("[optimizer]\ndisabled = true\ninterval = \"0s\"\n"))
	assert.NoError(err)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "goosea.toml")
	assert.NoError(os.WriteFile(path, []byte("[run]\nsessions = 2\n"), 0o644))

	cfg, err := Load(path)
	assert.NoError(err)
	if err == nil {
		assert.Equal(2, cfg.Run.Sessions)
		assert.Equal(uint64(DEFAULT_MEMORY_SIZE), cfg.Memory.Size)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(err, os.ErrNotExist)
}
