package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "rl:write:10.0.0.1", RateKey("rl", "write", "10.0.0.1"))
	assert.Equal(t, "rl:lock:charge:user-1", LockKey("rl", "charge:user-1"))
	// sha256("abc")
	assert.Equal(t,
		"rl:idem:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		IdempotencyKey("rl", "abc"))
}
