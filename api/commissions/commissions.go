package commissions

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"BrokerSettle/internal/config"
)

func StartCommissionsService(pool *pgxpool.Pool, engineCfg *config.EngineConfig, port string) {
	router := mux.NewRouter()
	router.HandleFunc("/commissions/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Commissions Service is active"))
	}).Methods("GET")

	router.Handle("/commissions/imports/upload", UploadCommissionReports(pool, engineCfg)).Methods("POST")
	router.Handle("/commissions/imports", DeleteImport(pool)).Methods("DELETE")

	router.Handle("/commissions/items", GetCommissionItems(pool)).Methods("GET")
	router.Handle("/commissions/items/claim", ClaimItem(pool, engineCfg)).Methods("POST")

	router.Handle("/commissions/fortnights", CreateFortnight(pool)).Methods("POST")
	router.Handle("/commissions/fortnights/totals", GetFortnightTotals(pool)).Methods("GET")
	router.Handle("/commissions/fortnights/recalculate", RecalculateFortnight(pool, engineCfg)).Methods("POST")
	router.Handle("/commissions/fortnights/retain", RetainBroker(pool)).Methods("POST")
	router.Handle("/commissions/fortnights/close", CloseFortnight(pool, engineCfg)).Methods("POST")
	router.Handle("/commissions/fortnights/ach", ExportACH(pool, engineCfg)).Methods("GET")

	router.Handle("/commissions/discounts", DiscountsHandler(pool)).Methods("POST", "DELETE")

	router.Handle("/commissions/advances", AdvancesHandler(pool)).Methods("POST", "GET")
	router.Handle("/commissions/advances/history", GetAdvanceHistory(pool)).Methods("GET")

	log.Println("Commissions Service started on :" + port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Commissions Service failed: %v", err)
	}
}
