package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del keystore. Viven en un package propio para evitar ciclos de
// import entre keystore y HTTP.

var (
	RotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymint_rotations_total",
		Help: "Rotaciones de clave persistidas (ganadas) por namespace",
	}, []string{"namespace"})

	RotationConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymint_rotation_conflicts_total",
		Help: "Conditional updates perdidos durante rotación",
	}, []string{"namespace"})

	SignTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymint_sign_total",
		Help: "Tokens firmados por namespace y resultado",
	}, []string{"namespace", "result"})

	VerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keymint_verify_total",
		Help: "Verificaciones de token por resultado",
	}, []string{"result"})
)

// Register registra las métricas en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		RotationsTotal,
		RotationConflictsTotal,
		SignTotal,
		VerifyTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
