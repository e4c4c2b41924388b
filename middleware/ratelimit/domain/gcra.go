package domain

import "math"

// Decide aplica o GCRA em segundos (float).
//
// lastTAT nil significa identidade nova: o cursor começa em now-burst*interval,
// então os primeiros burst+1 pedidos passam imediatamente.
// Em caso de negação o cursor retornado é o mesmo recebido.
func Decide(now float64, lastTAT *float64, ratePerMinute, burst int) (float64, Decision) {
	if burst < 0 {
		burst = 0
	}
	if ratePerMinute <= 0 {
		tat := now
		if lastTAT != nil {
			tat = *lastTAT
		}
		return tat, Decision{
			Allowed:           false,
			RetryAfterSeconds: math.Inf(1),
			Remaining:         0,
			Limit:             0,
			ResetEpochSeconds: now,
		}
	}

	interval := 60 / float64(ratePerMinute)
	window := float64(burst) * interval

	tat := now - window
	if lastTAT != nil {
		tat = *lastTAT
	}

	d := Decision{
		Limit:             burst + 1,
		ResetEpochSeconds: now + window,
	}

	if now < tat-window {
		d.RetryAfterSeconds = math.Max(0, tat-window-now)
		return tat, d
	}

	newTAT := math.Max(tat, now) + interval
	remaining := burst - int(math.Floor((newTAT-now)/interval-1))
	// o arredondamento de float pode empurrar o floor um passo para baixo
	if remaining > burst {
		remaining = burst
	}
	if remaining < 0 {
		remaining = 0
	}
	d.Allowed = true
	d.Remaining = remaining
	return newTAT, d
}

// StateResult é o retorno do passo atômico do store, em milissegundos inteiros.
type StateResult struct {
	Allowed      bool
	RetryAfterMs int64
	Remaining    int64
	Limit        int64
	ResetMs      int64
	TATMs        int64
}

// Decision converte o resultado do store em uma Decision.
func (r StateResult) Decision() Decision {
	remaining := int(r.Remaining)
	if remaining < 0 || !r.Allowed {
		remaining = 0
	}
	return Decision{
		Allowed:           r.Allowed,
		RetryAfterSeconds: float64(r.RetryAfterMs) / 1000,
		Remaining:         remaining,
		Limit:             int(r.Limit),
		ResetEpochSeconds: float64(r.ResetMs) / 1000,
	}
}

// DecideMillis é a versão inteira (ms) do GCRA, a mesma executada pelo script
// Lua do store Redis. Inteiros evitam drift de float ao longo da vida da chave.
func DecideMillis(nowMs int64, lastTAT *int64, intervalMs, burst int64) StateResult {
	if burst < 0 {
		burst = 0
	}
	window := burst * intervalMs

	tat := nowMs - window
	if lastTAT != nil {
		tat = *lastTAT
	}

	res := StateResult{
		Limit:   burst + 1,
		ResetMs: nowMs + window,
		TATMs:   tat,
	}
	if intervalMs <= 0 {
		res.Limit = 0
		res.ResetMs = nowMs
		res.RetryAfterMs = math.MaxInt64
		return res
	}

	if nowMs < tat-window {
		res.RetryAfterMs = tat - window - nowMs
		return res
	}

	newTAT := tat
	if nowMs > newTAT {
		newTAT = nowMs
	}
	newTAT += intervalMs

	remaining := burst - ((newTAT-nowMs)/intervalMs - 1)
	if remaining < 0 {
		remaining = 0
	}
	res.Allowed = true
	res.Remaining = remaining
	res.TATMs = newTAT
	return res
}
