package config

import (
	"strconv"
	"strings"
	"time"
)

// Env envolve um getenv com leitura tipada e valor padrão.
// Valores vazios ou inválidos caem no padrão.
type Env func(string) string

func (e Env) String(k, def string) string {
	if v := strings.TrimSpace(e(k)); v != "" {
		return v
	}
	return def
}

func (e Env) Int(k string, def int) int {
	v := strings.TrimSpace(e(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (e Env) Bool(k string, def bool) bool {
	v := strings.TrimSpace(e(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (e Env) Duration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
