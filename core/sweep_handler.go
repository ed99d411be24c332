package core

import (
	"net/http"
)

// SweepHandler roda um ciclo de expiração e responde 200 com um resumo, ou
// 500 quando o ciclo teve erro. É o alvo do self-ping do scheduler.
//
// O ciclo só coordena: as etapas bloqueantes registradas no Sweeper passam
// pelo bridge e as notificações pelo pool. Rodar o ciclo inteiro num worker
// faria um worker esperar por outro e, com pool pequeno, travaria.
func SweepHandler(rt *Runtime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rep, err := rt.Sweeper.Sweep(r.Context())
		if err != nil {
			rt.Log.Error(err, "expiry sweep via http failed", "removed", len(rep.Removed))
			http.Error(w, "Check event loop error: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("check event loop completed: " + formatInt(rep.Checked) +
			" checked, " + formatInt(len(rep.Removed)) + " removed\n"))
	})
}
