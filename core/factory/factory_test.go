package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Rate    float64
	Timeout time.Duration
}

type sampleConf struct {
	Rate    float64       `json:"rate"`
	Timeout time.Duration `json:"timeout"`
}

func TestRegistryCreateDecodesConf(t *testing.T) {
	reg := NewRegistry[*sample]()
	require.NoError(t, reg.Register("s", func(conf map[string]any) (*sample, error) {
		var c sampleConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sample{Rate: c.Rate, Timeout: c.Timeout}, nil
	}))
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"rate": "16.5", "timeout": "3s"}})
	require.NoError(t, err)
	assert.Equal(t, 16.5, inst.Rate)
	assert.Equal(t, 3*time.Second, inst.Timeout)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("x", func(map[string]any) (int, error) { return 1, nil }))
	assert.Error(t, reg.Register("x", func(map[string]any) (int, error) { return 2, nil }))
	assert.Error(t, reg.Register("nil", nil))

	_, err := reg.Create(ModuleConfig{Type: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: x")
	assert.Equal(t, []string{"x"}, reg.Names())
}
