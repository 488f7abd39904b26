package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHiveValidate(t *testing.T) {
	assert.NoError(t, HiveMachine.Validate())
	assert.NoError(t, HiveUser.Validate())
	assert.ErrorIs(t, Hive("HKCR").Validate(), ErrInvalidHive)
}

func TestParseHive(t *testing.T) {
	tests := map[string]Hive{
		"machine":     HiveMachine,
		"HKLM":        HiveMachine,
		"per-machine": HiveMachine,
		"user":        HiveUser,
		"hkcu":        HiveUser,
	}
	for input, want := range tests {
		got, err := ParseHive(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseHive("global")
	assert.ErrorIs(t, err, ErrInvalidHive)
}

func TestAttributesHas(t *testing.T) {
	attrs := AttributeIgnoreDependent | Attributes(0x8)
	assert.True(t, attrs.Has(AttributeIgnoreDependent))
	assert.True(t, attrs.Has(Attributes(0x8)))
	assert.False(t, Attributes(0x8).Has(AttributeIgnoreDependent))
}

func TestValidateKey(t *testing.T) {
	valid := []string{"Contoso.Runtime", "{1D2B6C8E-0000-4B7F-9E1A-000000000000}", "a b", "ünïcode"}
	for _, key := range valid {
		assert.NoError(t, ValidateKey(key), key)
	}

	invalid := []string{"", ".", "..", `a\b`, "a/b", "tab\there", strings.Repeat("k", MaxKeyLength+1), strings.Repeat("\u023a", 120)}
	for _, key := range invalid {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}

func TestValidateKey_LengthAfterNormalization(t *testing.T) {
	assert.NoError(t, ValidateKey(strings.Repeat("K", MaxKeyLength)))
	assert.LessOrEqual(t, MaxKeyLength+len(".json"), 255)

	// 240 bytes as written, 360 once lower-cased
	key := strings.Repeat("\u023a", 120)
	require.LessOrEqual(t, len(key), MaxKeyLength)
	assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, NormalizeKey("Contoso.RUNTIME"), NormalizeKey("contoso.runtime"))
}

func TestValidateRow(t *testing.T) {
	assert.NoError(t, ValidateRow(HiveUser, "a", "b"))
	assert.ErrorIs(t, ValidateRow(Hive(""), "a"), ErrInvalidHive)
	assert.ErrorIs(t, ValidateRow(HiveUser, "a", ""), ErrInvalidKey)
}

func TestAccessError(t *testing.T) {
	assert.NoError(t, AccessError("read", nil))

	cause := errors.New("disk on fire")
	err := AccessError("read provider", cause)
	assert.ErrorIs(t, err, ErrStoreAccess)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "read provider")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "filesystem", cfg.Type)
	assert.NotEmpty(t, cfg.FilesystemRoot)
	assert.Equal(t, "depreg", cfg.RedisPrefix)
	assert.Greater(t, cfg.PostgresMaxConns, 0)
}
