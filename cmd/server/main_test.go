package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-portal/internal/config"
	"account-portal/internal/domain"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "migrate", "promote"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	promote, _, err := root.Find([]string{"promote"})
	require.NoError(t, err)
	assert.Equal(t, "admin", promote.Flags().Lookup("role").DefValue)
}

func TestNewLogger(t *testing.T) {
	var cfg config.Config
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.Log.Level = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, domain.RoleAdmin, parseRole(" Admin "))
	assert.False(t, parseRole("root").IsValid())
}
