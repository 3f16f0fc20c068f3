package secure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfgadmin/internal/secure"
)

func ptr(s string) *string { return &s }

func TestNewRejectsBothOrigins(t *testing.T) {
	_, err := secure.New(ptr("clear"), ptr("AES:abc"))
	assert.ErrorIs(t, err, secure.ErrBothValues)
	assert.Panics(t, func() { secure.MustNew(ptr("clear"), ptr("AES:abc")) })

	v, err := secure.New(nil, nil)
	require.NoError(t, err)
	assert.True(t, v.IsPlain())
	assert.Equal(t, "", v.Value())
}

func TestPlainValue(t *testing.T) {
	v := secure.Plain("p@ssw0rd")
	assert.True(t, v.IsPlain())
	assert.False(t, v.IsDirty())

	require.NoError(t, v.Set("other"))
	assert.True(t, v.IsDirty())
	assert.Equal(t, "other", v.Value())

	v.ResetToOriginal()
	assert.Equal(t, "p@ssw0rd", v.Value())
	assert.False(t, v.IsDirty())

	clear, cipher := v.Wire()
	assert.Nil(t, cipher)
	assert.Equal(t, "p@ssw0rd", *clear)
}

func TestCipherCannotBeSetDirectly(t *testing.T) {
	v := secure.Cipher("AES:xyz")
	assert.ErrorIs(t, v.Set("x"), secure.ErrCipherNotEditable)
	assert.Equal(t, "AES:xyz", v.Value())

	clear, cipher := v.Wire()
	assert.Nil(t, clear)
	assert.Equal(t, "AES:xyz", *cipher)
}

func TestCipherEditAndReset(t *testing.T) {
	v := secure.Cipher("AES:xyz")
	require.NoError(t, v.Edit())
	assert.True(t, v.IsEditing())
	assert.Equal(t, "", v.Value())

	clear, cipher := v.Wire()
	assert.Nil(t, clear, "opening an edit alone does not change the payload")
	assert.Equal(t, "AES:xyz", *cipher)

	require.NoError(t, v.Set("new-secret"))
	assert.True(t, v.IsDirty())
	clear, cipher = v.Wire()
	assert.Nil(t, cipher)
	assert.Equal(t, "new-secret", *clear)

	v.ResetToOriginal()
	assert.False(t, v.IsEditing())
	assert.False(t, v.IsDirty())
	assert.Equal(t, "AES:xyz", v.Value())
	assert.ErrorIs(t, v.Set("again"), secure.ErrCipherNotEditable)
}

func TestEditRequiresCipher(t *testing.T) {
	assert.ErrorIs(t, secure.Plain("x").Edit(), secure.ErrNotSecure)
}

func TestBecomeSecureIsOneWay(t *testing.T) {
	v := secure.Plain("token")
	require.NoError(t, v.Set("token-2"))
	v.BecomeSecure()
	assert.True(t, v.IsSecure())
	assert.False(t, v.IsEditing())
	assert.False(t, v.IsDirty())

	v.ResetToOriginal()
	assert.True(t, v.IsSecure())
	assert.Equal(t, "token-2", v.Value())

	clear, cipher := v.Wire()
	assert.Nil(t, cipher)
	assert.Equal(t, "token-2", *clear)
}

func TestFromWire(t *testing.T) {
	v, err := secure.FromWire(ptr("x"), nil, true)
	require.NoError(t, err)
	assert.True(t, v.IsSecure())
	clear, _ := v.Wire()
	assert.Equal(t, "x", *clear)

	_, err = secure.FromWire(ptr("x"), ptr("y"), true)
	assert.ErrorIs(t, err, secure.ErrBothValues)
}
