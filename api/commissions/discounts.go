package commissions

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"BrokerSettle/api"
	"BrokerSettle/api/constants"
	"BrokerSettle/internal/settlement"
)

// Handler: DiscountsHandler proposes (POST) or removes (DELETE) a draft
// fortnight discount backed by an outstanding advance.
func DiscountsHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			proposeDiscount(pool, w, r)
		case http.MethodDelete:
			removeDiscount(pool, w, r)
		default:
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST or DELETE required")
		}
	}
}

// A proposal is validated against the advance's live remaining balance
// minus any other pending proposals on the same advance; the same check
// runs again at aggregation and closing time.
func proposeDiscount(pool *pgxpool.Pool, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		FortnightID string `json:"fortnight_id"`
		BrokerID    string `json:"broker_id"`
		AdvanceID   string `json:"advance_id"`
		Amount      string `json:"amount"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.FortnightID == "" || req.BrokerID == "" || req.AdvanceID == "" || req.Amount == "" {
		api.RespondWithError(w, http.StatusBadRequest, "fortnight_id, broker_id, advance_id and amount are required")
		return
	}
	amount := scanDecimal(req.Amount)

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

	// A discount deducts from the broker's commission in this fortnight,
	// so the broker must have at least one attributed line to deduct from.
	var itemCount int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM comm_items ci
		JOIN comm_imports imp ON imp.id = ci.import_id
		WHERE imp.fortnight_id = $1 AND ci.broker_id = $2`,
		req.FortnightID, req.BrokerID).Scan(&itemCount)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if itemCount == 0 {
		api.RespondWithError(w, http.StatusUnprocessableEntity, "broker has no commission items in this fortnight")
		return
	}

	var remainingStr, pendingStr string
	err = tx.QueryRow(ctx, `
		SELECT a.amount::text,
		       COALESCE((SELECT sum(fd.amount) FROM fortnight_discounts fd
		                 WHERE fd.advance_id = a.id AND fd.applied = false), 0)::text
		FROM advances a
		WHERE a.id = $1 AND a.broker_id = $2 FOR UPDATE`,
		req.AdvanceID, req.BrokerID).Scan(&remainingStr, &pendingStr)
	if err == pgx.ErrNoRows {
		api.RespondWithError(w, http.StatusBadRequest, "advance not found for broker")
		return
	}
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	remaining := scanDecimal(remainingStr).Sub(scanDecimal(pendingStr))
	if err := settlement.ValidateDiscount(amount, remaining); err != nil {
		respondSettlementError(w, err)
		return
	}

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO fortnight_discounts (fortnight_id, broker_id, advance_id, amount, reason)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING id::text`,
		req.FortnightID, req.BrokerID, req.AdvanceID, amount.StringFixed(2), req.Reason).Scan(&id)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tx.Commit(ctx); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, "commit failed")
		return
	}
	rolledBack = false
	api.RespondWithPayload(w, true, "", map[string]interface{}{"discount_id": id})
}

func removeDiscount(pool *pgxpool.Pool, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	discountID := r.URL.Query().Get("discount_id")
	if discountID == "" {
		api.RespondWithError(w, http.StatusBadRequest, "discount_id is required")
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

	var fortnightID string
	err = tx.QueryRow(ctx, `
		SELECT fortnight_id::text FROM fortnight_discounts
		WHERE id = $1 AND applied = false`, discountID).Scan(&fortnightID)
	if err == pgx.ErrNoRows {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrDiscountNotFound)
		return
	}
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := lockDraftFortnight(ctx, tx, fortnightID); err != nil {
		respondSettlementError(w, err)
		return
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM fortnight_discounts WHERE id = $1 AND applied = false`, discountID); err != nil {
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
