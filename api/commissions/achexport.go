package commissions

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"BrokerSettle/api"
	"BrokerSettle/api/constants"
	"BrokerSettle/internal/ach"
	"BrokerSettle/internal/config"
	"BrokerSettle/internal/logger"
)

// Handler: ExportACH renders a fortnight's eligible broker totals into the
// bank's payment file and streams it as plain text. Skipped brokers are
// audit-logged for manual follow-up; they never abort the batch.
func ExportACH(pool *pgxpool.Pool, engineCfg *config.EngineConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fortnightID := r.URL.Query().Get("fortnight_id")
		if fortnightID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "fortnight_id is required")
			return
		}
		var periodEnd time.Time
		if err := pool.QueryRow(ctx,
			`SELECT period_end FROM fortnights WHERE id = $1`, fortnightID).Scan(&periodEnd); err != nil {
			api.RespondWithError(w, http.StatusNotFound, constants.ErrFortnightNotFound)
			return
		}

		rows, err := pool.Query(ctx, `
			SELECT t.broker_id::text,
			       COALESCE(NULLIF(b.beneficiary_name, ''), b.name),
			       COALESCE(b.bank_route, ''), COALESCE(b.bank_account_no, ''),
			       b.account_type, t.net_amount::text, t.is_retained
			FROM fortnight_broker_totals t
			JOIN brokers b ON b.id = t.broker_id
			WHERE t.fortnight_id = $1`, fortnightID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		payments := []ach.Payment{}
		for rows.Next() {
			var p ach.Payment
			var accountType, net string
			if err := rows.Scan(&p.BrokerID, &p.BeneficiaryName, &p.RouteCode, &p.AccountNumber,
				&accountType, &net, &p.IsRetained); err != nil {
				rows.Close()
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
			p.AccountTypeCode = engineCfg.AccountTypeCode(accountType)
			p.Net = scanDecimal(net)
			payments = append(payments, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		reference := fmt.Sprintf("COMISIONES %s", periodEnd.Format("02-01-2006"))
		achCfg := ach.Config{
			ForcedZeroPrefixes: engineCfg.ACHForcedZeroPrefixes,
			NameMaxLen:         config.ACHNameMaxLen,
			AccountMaxLen:      config.ACHAccountMaxLen,
			ReferenceMaxLen:    config.ACHReferenceMaxLen,
		}
		file, err := ach.BuildFile(payments, reference, achCfg)
		for _, skipped := range file.Skipped {
			msg := fmt.Sprintf("[ACH] fortnight %s: skipped broker %s (%s): %s",
				fortnightID, skipped.BrokerID, skipped.BeneficiaryName, skipped.Reason)
			if logger.GlobalLogger != nil {
				logger.GlobalLogger.LogAudit(msg)
			} else {
				api.LogInfo(msg)
			}
		}
		if err != nil {
			api.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		filename := ach.FileName(periodEnd)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("X-Skipped-Brokers", fmt.Sprintf("%d", len(file.Skipped)))
		w.Write([]byte(file.Render()))
	}
}
