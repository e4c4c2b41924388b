// Package domain define contratos e tipos de domínio para o rate limit GCRA,
// o cache de idempotência e o lock distribuído.
//
// Este pacote não depende de net/http, de Redis nem de implementações concretas.
// As funções de decisão (Decide e DecideMillis) são puras: recebem o instante
// atual e o cursor armazenado (TAT) e devolvem o novo cursor e a decisão.
package domain
