package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/config"
	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/registry"
)

type stubDriver struct{ core.Driver }

func (stubDriver) Features() core.Features { return core.AllFeatures() }

func (stubDriver) Find(context.Context, *core.Model, string, core.DriverOptions) (core.Record, error) {
	return core.Record{}, nil
}

func TestResolve(t *testing.T) {
	cfg := config.New()
	r := registry.New(cfg)
	r.Register("local", stubDriver{})
	r.Register("remote", stubDriver{})

	t.Run("By Name", func(t *testing.T) {
		name, d, err := r.Resolve("remote")
		require.NoError(t, err)
		assert.Equal(t, "remote", name)
		assert.NotNil(t, d)
	})

	t.Run("Unknown Driver Names The Key", func(t *testing.T) {
		_, _, err := r.Resolve("indexeddb")
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrUnknownDriver)
		assert.Contains(t, err.Error(), "indexeddb")
		assert.True(t, core.IsProgrammerError(err))
	})

	t.Run("No Default", func(t *testing.T) {
		_, _, err := r.Resolve("")
		assert.ErrorIs(t, err, core.ErrUnknownDriver)
	})

	t.Run("Default Getter", func(t *testing.T) {
		active := "local"
		cfg.SetDefaultDriverFunc(func() string { return active })

		name, _, err := r.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "local", name)

		active = "remote"
		name, _, err = r.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "remote", name)
	})

	assert.Equal(t, []string{"local", "remote"}, r.Names())
}
