package domain

// Action é o desfecho de uma requisição na máquina de estados do middleware.
type Action string

const (
	ActionAllow       Action = "allow"
	ActionShadowBlock Action = "shadow_block"
	ActionBlock       Action = "block"
)

// Recorder é o sink de métricas do rate limit.
//
// Implementações podem usar memória, Redis, Prometheus, etc.
// Devem ser best-effort: nunca derrubar a request.
//
// Observação: cuidado com cardinalidade. O bucket é um conjunto fechado;
// a identidade nunca é passada para cá.
type Recorder interface {
	RecordDecision(bucket string, action Action, shadow bool)
	RecordRetryAfter(bucket string, shadow bool, seconds float64)
}

// NopRecorder descarta tudo.
type NopRecorder struct{}

func (NopRecorder) RecordDecision(string, Action, bool)    {}
func (NopRecorder) RecordRetryAfter(string, bool, float64) {}
