package configbinder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/support/util/configbinder"
)

type target struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	UseSSL  bool   `yaml:"use_ssl"`
	Ignored string `yaml:"-"`
}

func TestBindProperties_WeaklyTyped(t *testing.T) {
	var got target
	err := configbinder.BindProperties(map[string]interface{}{
		"host":    "localhost",
		"port":    "9000",
		"use_ssl": "true",
	}, &got)
	require.NoError(t, err)
	assert.Equal(t, target{Host: "localhost", Port: 9000, UseSSL: true}, got)
}

func TestBindProperties_Empty(t *testing.T) {
	got := target{Host: "kept"}
	require.NoError(t, configbinder.BindProperties(nil, &got))
	assert.Equal(t, "kept", got.Host)
}

func TestBindProperties_TypeMismatch(t *testing.T) {
	var got target
	err := configbinder.BindProperties(map[string]interface{}{"port": "not-a-port"}, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}
