package commissions

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"BrokerSettle/api"
	"BrokerSettle/api/utils"
	"BrokerSettle/internal/config"
)

// Handler: GetCommissionItems lists ledger lines filtered by import, broker
// or fortnight, with unidentified=true narrowing to unattributed rows.
func GetCommissionItems(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		pagination, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		where := "WHERE 1=1"
		args := []any{}
		if v := r.URL.Query().Get("import_id"); v != "" {
			args = append(args, v)
			where += " AND ci.import_id = $" + itoa(len(args))
		}
		if v := r.URL.Query().Get("broker_id"); v != "" {
			args = append(args, v)
			where += " AND ci.broker_id = $" + itoa(len(args))
		}
		if v := r.URL.Query().Get("fortnight_id"); v != "" {
			args = append(args, v)
			where += " AND imp.fortnight_id = $" + itoa(len(args))
		}
		if r.URL.Query().Get("unidentified") == "true" {
			where += " AND ci.broker_id IS NULL"
		}

		countQuery := `
			SELECT count(*) FROM comm_items ci
			JOIN comm_imports imp ON imp.id = ci.import_id ` + where
		total, err := utils.CountTotal(ctx, pool, countQuery, args...)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		pagination.SetPaginationStats(total)

		listArgs := append(args, pagination.Limit, pagination.Offset)
		query := `
			SELECT ci.id::text, ci.import_id::text, ci.policy_number, ci.insured_name,
			       ci.gross_amount::text, COALESCE(ci.percent_applied::text, ''),
			       COALESCE(ci.broker_id::text, ''), ins.name, ci.raw_row, ci.created_at
			FROM comm_items ci
			JOIN comm_imports imp ON imp.id = ci.import_id
			JOIN insurers ins ON ins.id = ci.insurer_id ` + where + `
			ORDER BY ci.created_at DESC, ci.id
			LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
		rows, err := pool.Query(ctx, query, listArgs...)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer rows.Close()

		items := []map[string]interface{}{}
		for rows.Next() {
			var id, importID, policy, insured, gross, percent, brokerID, insurerName string
			var rawRow json.RawMessage
			var createdAt interface{}
			if err := rows.Scan(&id, &importID, &policy, &insured, &gross, &percent, &brokerID, &insurerName, &rawRow, &createdAt); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
			items = append(items, map[string]interface{}{
				"id":              id,
				"import_id":       importID,
				"policy_number":   policy,
				"insured_name":    insured,
				"gross_amount":    gross,
				"percent_applied": percent,
				"broker_id":       brokerID,
				"insurer":         insurerName,
				"raw_row":         rawRow,
				"created_at":      createdAt,
			})
		}
		if err := rows.Err(); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"rows":       items,
			"pagination": pagination,
		})
	}
}

// Handler: ClaimItem attributes an unidentified item to the requesting
// broker. The update is a compare-and-swap against broker_id IS NULL inside
// the retention window, so of two concurrent claims exactly one wins.
func ClaimItem(pool *pgxpool.Pool, engineCfg *config.EngineConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		var req struct {
			ItemID   string `json:"item_id"`
			BrokerID string `json:"broker_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" || req.BrokerID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "item_id and broker_id are required")
			return
		}

		tag, err := pool.Exec(ctx, `
			UPDATE comm_items SET broker_id = $1
			WHERE id = $2
			  AND broker_id IS NULL
			  AND created_at >= now() - make_interval(days => $3)`,
			req.BrokerID, req.ItemID, engineCfg.RetentionDays)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if tag.RowsAffected() == 0 {
			api.RespondWithError(w, http.StatusConflict, "item already claimed, expired or unknown")
			return
		}
		api.RespondWithResult(w, true, "")
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
