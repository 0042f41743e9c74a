package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps the suite fast; the encoding is the same at any cost.
var cheap = Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func TestHashPasswordFormat(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("test-password-123")
	require.NoError(t, err)

	assert.Contains(t, hash, "$argon2id$")
	assert.Contains(t, hash, "v=19")
	assert.Contains(t, hash, "m=65536,t=3,p=4")
	assert.NoError(t, CheckHash(hash))
}

func TestHashPasswordUniquePerCall(t *testing.T) {
	t.Parallel()

	hash1, err := HashPasswordWith("same-password", cheap)
	require.NoError(t, err)
	hash2, err := HashPasswordWith("same-password", cheap)
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPasswordWith("correct-horse-battery-staple", cheap)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct", "correct-horse-battery-staple", true},
		{"wrong", "wrong-password", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := VerifyPassword(tt.password, hash)
			require.NoError(t, err)
			assert.Equal(t, tt.want, match)
		})
	}
}

func TestVerifyPasswordInvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not enough parts", "$argon2id$v=19"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"invalid version format", "$argon2id$version=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"unsupported version", "$argon2id$v=16$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"invalid params format", "$argon2id$v=19$memory=65536$c2FsdA$aGFzaA"},
		{"invalid salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!invalid!!!$aGFzaA"},
		{"invalid key encoding", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!invalid!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPassword("password", tt.hash)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestDecodeHashReadsParams(t *testing.T) {
	t.Parallel()

	hash, err := HashPasswordWith("test", cheap)
	require.NoError(t, err)

	p, salt, key, err := decodeHash(hash)
	require.NoError(t, err)
	assert.Equal(t, cheap, p)
	assert.Len(t, salt, 8)
	assert.Len(t, key, 16)
}

func scripted(answers ...string) Prompter {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("no more input")
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
}

func TestPromptAndConfirmPassword(t *testing.T) {
	t.Parallel()

	password, err := PromptAndConfirmPassword(scripted("hunter2", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	_, err = PromptAndConfirmPassword(scripted(""))
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = PromptAndConfirmPassword(scripted("hunter2", "hunter3"))
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = PromptAndConfirmPassword(scripted("hunter2"))
	assert.Error(t, err)
}
