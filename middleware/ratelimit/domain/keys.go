package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Nomes de chave compartilhados com deployments existentes; não mudar o formato.

// RateKey retorna "{namespace}:{bucket}:{identity}".
func RateKey(namespace, bucket, identity string) string {
	return joinKey(namespace, bucket, identity)
}

// IdempotencyKey retorna "{namespace}:idem:{sha256(rawKey)}".
func IdempotencyKey(namespace, rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return joinKey(namespace, "idem", hex.EncodeToString(sum[:]))
}

// LockKey retorna "{namespace}:lock:{key}".
func LockKey(namespace, key string) string {
	return joinKey(namespace, "lock", key)
}

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}
