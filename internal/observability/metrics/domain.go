package metrics

import "time"

// ReadinessAttempt records a readiness probe result: "ok" or "error" per
// attempt, "unavailable" once per failed wait.
func ReadinessAttempt(result string) {
	if !enabled {
		return
	}
	readinessAttemptsTotal.WithLabelValues(result).Inc()
}

// Deployment records a deployment reaching a terminal state.
func Deployment(contract, state string, elapsed time.Duration) {
	if !enabled {
		return
	}
	deploymentTotal.WithLabelValues(contract, state).Inc()
	deploymentDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// SandboxTransaction records a transaction queued by the sandbox.
// kind is "deploy", "create" or "call"; status is "success" or "reverted".
func SandboxTransaction(kind, status string) {
	if !enabled {
		return
	}
	sandboxTransactionsTotal.WithLabelValues(kind, status).Inc()
}
