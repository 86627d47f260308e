package commissions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"BrokerSettle/api"
	"BrokerSettle/internal/config"
	"BrokerSettle/internal/settlement"
)

// Handler: CreateFortnight opens a new draft settlement period. A partial
// unique index allows one DRAFT fortnight at a time.
func CreateFortnight(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		var req struct {
			PeriodStart string `json:"period_start"`
			PeriodEnd   string `json:"period_end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeriodStart == "" || req.PeriodEnd == "" {
			api.RespondWithError(w, http.StatusBadRequest, "period_start and period_end are required")
			return
		}
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO fortnights (period_start, period_end)
			VALUES ($1::date, $2::date)
			RETURNING id::text`, req.PeriodStart, req.PeriodEnd).Scan(&id)
		if err != nil {
			api.RespondWithError(w, http.StatusConflict, "failed to create fortnight (is another draft open?): "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"fortnight_id": id})
	}
}

// Handler: GetFortnightTotals lists the aggregated broker totals of a
// fortnight.
func GetFortnightTotals(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fortnightID := r.URL.Query().Get("fortnight_id")
		if fortnightID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "fortnight_id is required")
			return
		}
		totals, err := queryTotals(ctx, pool, fortnightID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", totals)
	}
}

func queryTotals(ctx context.Context, db querier, fortnightID string) ([]map[string]interface{}, error) {
	rows, err := db.Query(ctx, `
		SELECT t.broker_id::text, b.name, t.gross_amount::text, t.discounts_json,
		       t.net_amount::text, t.is_retained
		FROM fortnight_broker_totals t
		JOIN brokers b ON b.id = t.broker_id
		WHERE t.fortnight_id = $1
		ORDER BY t.broker_id`, fortnightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]interface{}{}
	for rows.Next() {
		var brokerID, name, gross, net string
		var discounts json.RawMessage
		var retained bool
		if err := rows.Scan(&brokerID, &name, &gross, &discounts, &net, &retained); err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"broker_id":    brokerID,
			"broker_name":  name,
			"gross_amount": gross,
			"discounts":    discounts,
			"net_amount":   net,
			"is_retained":  retained,
		})
	}
	return out, rows.Err()
}

// loadAggregateInputs reads everything ComputeTotals needs for a fortnight.
func loadAggregateInputs(ctx context.Context, db querier, fortnightID string) (
	items []settlement.Item,
	brokers map[string]settlement.BrokerInfo,
	discounts []settlement.Discount,
	rules []settlement.DeductionRule,
	balances map[string]decimal.Decimal,
	retained map[string]bool,
	err error,
) {
	brokers = map[string]settlement.BrokerInfo{}
	balances = map[string]decimal.Decimal{}
	retained = map[string]bool{}

	rows, err := db.Query(ctx, `
		SELECT COALESCE(ci.broker_id::text, ''), ins.name, ci.gross_amount::text,
		       ci.percent_applied::text, imp.is_life
		FROM comm_items ci
		JOIN comm_imports imp ON imp.id = ci.import_id
		JOIN insurers ins ON ins.id = ci.insurer_id
		WHERE imp.fortnight_id = $1
		ORDER BY ci.id`, fortnightID)
	if err != nil {
		return
	}
	for rows.Next() {
		var item settlement.Item
		var gross string
		var percent *string
		if err = rows.Scan(&item.BrokerID, &item.Insurer, &gross, &percent, &item.IsLife); err != nil {
			rows.Close()
			return
		}
		item.GrossAmount = scanDecimal(gross)
		if percent != nil {
			p := scanDecimal(*percent)
			item.PercentApplied = &p
		}
		items = append(items, item)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return
	}

	rows, err = db.Query(ctx, `SELECT id::text, percent_default::text FROM brokers`)
	if err != nil {
		return
	}
	for rows.Next() {
		var id, pct string
		if err = rows.Scan(&id, &pct); err != nil {
			rows.Close()
			return
		}
		brokers[id] = settlement.BrokerInfo{ID: id, PercentDefault: scanDecimal(pct)}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return
	}

	rows, err = db.Query(ctx, `
		SELECT id::text, broker_id::text, advance_id::text, amount::text, reason
		FROM fortnight_discounts
		WHERE fortnight_id = $1 AND applied = false
		ORDER BY created_at, id`, fortnightID)
	if err != nil {
		return
	}
	for rows.Next() {
		var d settlement.Discount
		var amount string
		if err = rows.Scan(&d.ID, &d.BrokerID, &d.AdvanceID, &amount, &d.Reason); err != nil {
			rows.Close()
			return
		}
		d.Amount = scanDecimal(amount)
		discounts = append(discounts, d)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return
	}

	rows, err = db.Query(ctx, `
		SELECT broker_id::text, amount::text, reason
		FROM broker_deduction_rules WHERE active ORDER BY created_at, id`)
	if err != nil {
		return
	}
	for rows.Next() {
		var rule settlement.DeductionRule
		var amount string
		if err = rows.Scan(&rule.BrokerID, &amount, &rule.Reason); err != nil {
			rows.Close()
			return
		}
		rule.Amount = scanDecimal(amount)
		rules = append(rules, rule)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return
	}

	rows, err = db.Query(ctx, `
		SELECT DISTINCT a.id::text, a.amount::text
		FROM advances a
		JOIN fortnight_discounts fd ON fd.advance_id = a.id
		WHERE fd.fortnight_id = $1`, fortnightID)
	if err != nil {
		return
	}
	for rows.Next() {
		var id, amount string
		if err = rows.Scan(&id, &amount); err != nil {
			rows.Close()
			return
		}
		balances[id] = scanDecimal(amount)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return
	}

	rows, err = db.Query(ctx, `
		SELECT broker_id::text FROM fortnight_broker_totals
		WHERE fortnight_id = $1 AND is_retained`, fortnightID)
	if err != nil {
		return
	}
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return
		}
		retained[id] = true
	}
	rows.Close()
	err = rows.Err()
	return
}

// recomputeTotalsTx rebuilds the derived totals of a draft fortnight inside
// the caller's transaction: delete and reinsert from source data, keeping
// existing is_retained flags. Identical inputs produce identical rows, so
// the operation is idempotent.
func recomputeTotalsTx(ctx context.Context, tx pgx.Tx, fortnightID string, engineCfg *config.EngineConfig) ([]settlement.BrokerTotal, error) {
	items, brokers, discounts, rules, balances, retained, err := loadAggregateInputs(ctx, tx, fortnightID)
	if err != nil {
		return nil, err
	}
	totals, err := settlement.ComputeTotals(items, brokers, discounts, rules, balances, retained,
		settlement.Config{LifeOverrideInsurers: engineCfg.LifeOverrideInsurers})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM fortnight_broker_totals WHERE fortnight_id = $1`, fortnightID); err != nil {
		return nil, err
	}
	for _, t := range totals {
		discountsJSON, err := json.Marshal(t.Discounts)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO fortnight_broker_totals
				(fortnight_id, broker_id, gross_amount, discounts_json, net_amount, is_retained)
			VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6)`,
			fortnightID, t.BrokerID, t.Gross.StringFixed(2), discountsJSON, t.Net.StringFixed(2), t.IsRetained)
		if err != nil {
			return nil, err
		}
	}
	return totals, nil
}

// lockDraftFortnight takes the row lock and verifies the fortnight is still
// open. Returns settlement.ErrAlreadyPaid when it is not.
func lockDraftFortnight(ctx context.Context, tx pgx.Tx, fortnightID string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM fortnights WHERE id = $1 FOR UPDATE`, fortnightID).Scan(&status)
	if err == pgx.ErrNoRows {
		return errors.New("fortnight not found")
	}
	if err != nil {
		return err
	}
	if status != "DRAFT" {
		return settlement.ErrAlreadyPaid
	}
	return nil
}

// Handler: RecalculateFortnight recomputes the draft totals from the ledger.
func RecalculateFortnight(pool *pgxpool.Pool, engineCfg *config.EngineConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		var req struct {
			FortnightID string `json:"fortnight_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FortnightID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "fortnight_id is required")
			return
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "failed to begin transaction")
			return
		}
		rolledBack := true
		defer func() {
			if rolledBack {
				tx.Rollback(ctx)
			}
		}()

		if err := lockDraftFortnight(ctx, tx, req.FortnightID); err != nil {
			respondSettlementError(w, err)
			return
		}
		if _, err := recomputeTotalsTx(ctx, tx, req.FortnightID, engineCfg); err != nil {
			respondSettlementError(w, err)
			return
		}
		if err := tx.Commit(ctx); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "commit failed")
			return
		}
		rolledBack = false

		totals, err := queryTotals(ctx, pool, req.FortnightID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", totals)
	}
}

// Handler: RetainBroker sets or clears the payout hold for one broker in a
// draft fortnight. Retained brokers keep their computed totals but are
// excluded from ACH generation until released.
func RetainBroker(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		var req struct {
			FortnightID string `json:"fortnight_id"`
			BrokerID    string `json:"broker_id"`
			Retained    bool   `json:"retained"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FortnightID == "" || req.BrokerID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "fortnight_id and broker_id are required")
			return
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "failed to begin transaction")
			return
		}
		rolledBack := true
		defer func() {
			if rolledBack {
				tx.Rollback(ctx)
			}
		}()

		if err := lockDraftFortnight(ctx, tx, req.FortnightID); err != nil {
			respondSettlementError(w, err)
			return
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO fortnight_broker_totals
				(fortnight_id, broker_id, gross_amount, net_amount, is_retained)
			VALUES ($1, $2, 0, 0, $3)
			ON CONFLICT (fortnight_id, broker_id)
			DO UPDATE SET is_retained = EXCLUDED.is_retained, updated_at = now()`,
			req.FortnightID, req.BrokerID, req.Retained)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := tx.Commit(ctx); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "commit failed")
			return
		}
		rolledBack = false
		api.RespondWithResult(w, true, "")
	}
}

// Handler: CloseFortnight executes the DRAFT -> PAID transition as one
// atomic unit: recompute totals, apply discounts, decrement advance
// balances, flip the status. A concurrent or repeated close observes the
// status guard and gets the original totals back with a 409.
func CloseFortnight(pool *pgxpool.Pool, engineCfg *config.EngineConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		var req struct {
			FortnightID string `json:"fortnight_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FortnightID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "fortnight_id is required")
			return
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "failed to begin transaction")
			return
		}
		rolledBack := true
		defer func() {
			if rolledBack {
				tx.Rollback(ctx)
			}
		}()

		if err := lockDraftFortnight(ctx, tx, req.FortnightID); err != nil {
			if errors.Is(err, settlement.ErrAlreadyPaid) {
				// Double close: report the original result, mutate nothing.
				totals, qerr := queryTotals(ctx, pool, req.FortnightID)
				if qerr == nil {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusConflict)
					json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error":   "fortnight already paid",
						"rows":    totals,
					})
					return
				}
			}
			respondSettlementError(w, err)
			return
		}

		if _, err := recomputeTotalsTx(ctx, tx, req.FortnightID, engineCfg); err != nil {
			respondSettlementError(w, err)
			return
		}

		items, _, discounts, _, balances, _, err := loadAggregateInputs(ctx, tx, req.FortnightID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// Only discounts that were folded into a total may touch an
		// advance; a proposal whose broker ended up without items stays
		// unapplied and pending for a later fortnight.
		applicable := settlement.ApplicableDiscounts(discounts, items)
		apps, err := settlement.PlanAdvanceApplications(applicable, balances)
		if err != nil {
			respondSettlementError(w, err)
			return
		}
		for _, app := range apps {
			_, err = tx.Exec(ctx, `
				UPDATE advances SET amount = amount - $1::numeric, status = $2
				WHERE id = $3`,
				app.Amount.StringFixed(2), app.NewStatus, app.AdvanceID)
			if err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO advance_logs (advance_id, amount, payment_type, fortnight_id)
				VALUES ($1, $2::numeric, 'fortnight_discount', $3)`,
				app.AdvanceID, app.Amount.StringFixed(2), req.FortnightID)
			if err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		if len(applicable) > 0 {
			appliedIDs := make([]string, 0, len(applicable))
			for _, d := range applicable {
				appliedIDs = append(appliedIDs, d.ID)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE fortnight_discounts SET applied = true
				WHERE fortnight_id = $1 AND applied = false AND id = ANY($2::uuid[])`,
				req.FortnightID, appliedIDs); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE fortnights SET status = 'PAID'
			WHERE id = $1 AND status = 'DRAFT'`, req.FortnightID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if tag.RowsAffected() == 0 {
			api.RespondWithError(w, http.StatusConflict, "fortnight already paid")
			return
		}
		if err := tx.Commit(ctx); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "commit failed")
			return
		}
		rolledBack = false

		totals, err := queryTotals(ctx, pool, req.FortnightID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", totals)
	}
}

func respondSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrAlreadyPaid):
		api.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, settlement.ErrDiscountExceedsBalance):
		api.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
