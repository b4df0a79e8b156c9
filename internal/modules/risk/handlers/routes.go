package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk engine routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/validate", h.HandleValidateTrade)
		r.Post("/executions", h.HandleRecordExecution)
		r.Post("/deposits", h.HandleRecordDeposit)

		// Profit taking
		r.Route("/positions/{positionID}", func(r chi.Router) {
			r.Post("/exit-plan", h.HandleCreateExitPlan)
			r.Get("/exit-plan", h.HandleGetExitPlan)
			r.Delete("/exit-plan", h.HandleCloseExitPlan)
			r.Post("/check", h.HandleCheckProfitTargets)
			r.Post("/evaluate", h.HandleEvaluateExit)
		})

		// Account status
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/mode", h.HandleGetAccountMode)
			r.Get("/compliance", h.HandleGetComplianceStatus)
			r.Get("/settlements", h.HandleListSettlements)
			r.Get("/day-trades", h.HandleListDayTrades)
		})
	})
}
