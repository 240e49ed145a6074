package config

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestTLSSettingsDisabledSkipsValidation(t *testing.T) {
	assert := tdd.New(t)
	t2 := &TLSSettings{Enabled: false, Cert: "not-a-cert"}
	assert.NoError(t2.Validate())
	conf, err := t2.Expand()
	assert.NoError(err)
	assert.Nil(conf)
}

func TestTLSSettingsRequiresCertAndKeyTogether(t *testing.T) {
	assert := tdd.New(t)
	ts := &TLSSettings{Enabled: true, Cert: "-----BEGIN CERTIFICATE-----"}
	assert.Error(ts.Validate())
}

func TestTLSSettingsSystemCAOnly(t *testing.T) {
	assert := tdd.New(t)
	ts := &TLSSettings{Enabled: true, SystemCA: true}
	assert.NoError(ts.Validate())
	conf, err := ts.Expand()
	assert.NoError(err)
	assert.NotNil(conf)
	assert.NotNil(conf.RootCAs)
}

func TestParamsNamespacesWithPrefix(t *testing.T) {
	assert := tdd.New(t)
	params := Params("broker")
	assert.NotEmpty(params)
	assert.Equal("broker-tls", params[0].Name)
	assert.Equal("broker-tls-cert", params[2].Name)
}
