package commissions

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"BrokerSettle/api"
	"BrokerSettle/api/constants"
)

// Handler: AdvancesHandler creates (POST) or lists (GET) broker cash
// advances. The stored amount is the remaining unpaid balance; the payment
// history lives in advance_logs.
func AdvancesHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			createAdvance(pool, w, r)
		case http.MethodGet:
			listAdvances(pool, w, r)
		default:
			api.RespondWithError(w, http.StatusMethodNotAllowed, "GET or POST required")
		}
	}
}

func createAdvance(pool *pgxpool.Pool, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		BrokerID string `json:"broker_id"`
		Amount   string `json:"amount"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BrokerID == "" || req.Amount == "" {
		api.RespondWithError(w, http.StatusBadRequest, "broker_id and amount are required")
		return
	}
	amount := scanDecimal(req.Amount)
	if !amount.IsPositive() {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrAmountMustBePositive)
		return
	}
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO advances (broker_id, amount, reason)
		VALUES ($1, $2::numeric, $3)
		RETURNING id::text`,
		req.BrokerID, amount.StringFixed(2), req.Reason).Scan(&id)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithPayload(w, true, "", map[string]interface{}{"advance_id": id})
}

func listAdvances(pool *pgxpool.Pool, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := `
		SELECT a.id::text, a.broker_id::text, b.name, a.amount::text, a.reason, a.status, a.created_at
		FROM advances a JOIN brokers b ON b.id = a.broker_id`
	args := []any{}
	if brokerID := r.URL.Query().Get("broker_id"); brokerID != "" {
		query += ` WHERE a.broker_id = $1`
		args = append(args, brokerID)
	}
	query += ` ORDER BY a.created_at DESC`

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()
	out := []map[string]interface{}{}
	for rows.Next() {
		var id, brokerID, name, amount, reason, status string
		var createdAt interface{}
		if err := rows.Scan(&id, &brokerID, &name, &amount, &reason, &status, &createdAt); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, map[string]interface{}{
			"id":         id,
			"broker_id":  brokerID,
			"broker":     name,
			"remaining":  amount,
			"reason":     reason,
			"status":     status,
			"created_at": createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithPayload(w, true, "", out)
}

// Handler: GetAdvanceHistory lists the payments recorded against one
// advance.
func GetAdvanceHistory(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		advanceID := r.URL.Query().Get("advance_id")
		if advanceID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "advance_id is required")
			return
		}
		rows, err := pool.Query(ctx, `
			SELECT id::text, amount::text, payment_type, COALESCE(fortnight_id::text, ''), created_at
			FROM advance_logs WHERE advance_id = $1
			ORDER BY created_at`, advanceID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer rows.Close()
		out := []map[string]interface{}{}
		for rows.Next() {
			var id, amount, paymentType, fortnightID string
			var createdAt interface{}
			if err := rows.Scan(&id, &amount, &paymentType, &fortnightID, &createdAt); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
			out = append(out, map[string]interface{}{
				"id":           id,
				"amount":       amount,
				"payment_type": paymentType,
				"fortnight_id": fortnightID,
				"created_at":   createdAt,
			})
		}
		if err := rows.Err(); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", out)
	}
}
