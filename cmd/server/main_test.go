package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/utils"
)

func TestLoadKeys(t *testing.T) {
	privA, pubA, err := utils.GenerateKeyPair(2048)
	require.NoError(t, err)
	_, pubB, err := utils.GenerateKeyPair(2048)
	require.NoError(t, err)

	priv, pub, pubPEM, err := loadKeys(config.KeyConfig{PrivateKey: string(privA), PublicKey: string(pubA)})
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(pub))
	assert.Equal(t, strings.TrimSpace(string(pubA)), pubPEM)

	_, _, _, err = loadKeys(config.KeyConfig{PrivateKey: string(privA), PublicKey: string(pubB)})
	assert.ErrorIs(t, err, service.ErrKeyFormat)

	_, _, _, err = loadKeys(config.KeyConfig{PrivateKey: string(privA), PublicKey: "not a key"})
	assert.ErrorIs(t, err, service.ErrKeyFormat)
}
