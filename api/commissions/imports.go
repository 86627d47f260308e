package commissions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"BrokerSettle/api"
	"BrokerSettle/api/constants"
	"BrokerSettle/internal/checksum"
	"BrokerSettle/internal/config"
	"BrokerSettle/internal/matching"
	"BrokerSettle/internal/parsers"
)

// Independent insurer files parse in parallel; each file is its own
// transaction scoped to one import batch.
const maxConcurrentFiles = 4

const ocrExtractTimeout = 60 * time.Second

var (
	ocrExtractor     parsers.TextExtractor
	ocrExtractorOnce sync.Once
)

// SetTextExtractor wires the external OCR collaborator. Without one, scanned
// reports must be uploaded as already-extracted plain text.
func SetTextExtractor(ex parsers.TextExtractor) {
	ocrExtractorOnce.Do(func() {
		ocrExtractor = ex
	})
}

type insurerInfo struct {
	ID              string
	Name            string
	InvertNegatives bool
	PolicyAliases   []string
	InsuredAliases  []string
	AmountAliases   []string
}

type fileResult struct {
	Filename         string             `json:"filename"`
	BatchID          string             `json:"batch_id,omitempty"`
	RowsImported     int                `json:"rows_imported"`
	RowsUnidentified int                `json:"rows_unidentified"`
	TotalAmount      string             `json:"total_amount,omitempty"`
	RowErrors        []parsers.RowError `json:"errors"`
	Error            string             `json:"error,omitempty"`
}

// Handler: UploadCommissionReports ingests one or more insurer report files
// for a draft fortnight. Row-level rejects are reported per file; a file
// whose container cannot be read fails only that file's batch.
func UploadCommissionReports(pool *pgxpool.Pool, engineCfg *config.EngineConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		insurerID := r.FormValue("insurer_id")
		fortnightID := r.FormValue("fortnight_id")
		formatHint := r.FormValue("format_hint")
		if formatHint == "" {
			formatHint = "tabular"
		}
		isLife := r.FormValue("is_life") == "true"
		files := r.MultipartForm.File["file"]
		if insurerID == "" || fortnightID == "" || len(files) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, "insurer_id, fortnight_id and at least one file are required")
			return
		}

		insurer, err := loadInsurer(ctx, pool, insurerID)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Unknown insurer: "+err.Error())
			return
		}
		var status string
		if err := pool.QueryRow(ctx, `SELECT status FROM fortnights WHERE id = $1`, fortnightID).Scan(&status); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Unknown fortnight")
			return
		}
		if status != "DRAFT" {
			api.RespondWithError(w, http.StatusConflict, constants.ErrFortnightPaid)
			return
		}

		results := make([]fileResult, len(files))
		sem := make(chan struct{}, maxConcurrentFiles)
		var wg sync.WaitGroup
		for i, fh := range files {
			wg.Add(1)
			go func(i int, fh *multipart.FileHeader) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				results[i] = ingestOneFile(ctx, pool, engineCfg, insurer, fortnightID, formatHint, isLife, fh)
			}(i, fh)
		}
		wg.Wait()

		failed := 0
		for _, res := range results {
			if res.Error != "" {
				failed++
				api.LogError("upload %s: %s", res.Filename, res.Error)
			}
		}
		if failed == len(results) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			api.RespondWithPayload(w, false, "no file could be imported", results)
			return
		}
		api.RespondWithPayload(w, true, "", results)
	}
}

func ingestOneFile(
	ctx context.Context,
	pool *pgxpool.Pool,
	engineCfg *config.EngineConfig,
	insurer insurerInfo,
	fortnightID, formatHint string,
	isLife bool,
	fh *multipart.FileHeader,
) fileResult {
	res := fileResult{Filename: fh.Filename, RowErrors: []parsers.RowError{}}

	file, err := fh.Open()
	if err != nil {
		res.Error = "failed to open file"
		return res
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		res.Error = "failed to read file"
		return res
	}

	fileHash := checksum.Sum(data)
	var dupe int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM comm_imports
		WHERE fortnight_id = $1 AND file_sha256 = $2`, fortnightID, fileHash).Scan(&dupe)
	if err != nil {
		res.Error = "dedupe check failed: " + err.Error()
		return res
	}
	if dupe > 0 {
		res.Error = constants.ErrDuplicateFile
		return res
	}

	parsed, err := parseFile(ctx, data, fh.Filename, formatHint, insurer, engineCfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.RowErrors = parsed.Errors

	// Structural invariants hold for every row or the batch is aborted.
	for _, row := range parsed.Rows {
		if strings.TrimSpace(row.PolicyNumber) == "" {
			res.Error = "structural violation: row with empty policy number"
			return res
		}
	}

	matcher := matching.NewMatcher(&pgDirectory{db: pool})
	type resolved struct {
		row parsers.CanonicalRow
		r   matching.Resolution
	}
	rows := make([]resolved, 0, len(parsed.Rows))
	unidentified := 0
	total := decimal.Zero
	for _, row := range parsed.Rows {
		resolution, err := matcher.Resolve(ctx, row)
		if err != nil {
			res.Error = "matching failed: " + err.Error()
			return res
		}
		if resolution.BrokerID == "" {
			unidentified++
		}
		total = total.Add(row.GrossAmount)
		rows = append(rows, resolved{row: row, r: resolution})
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		res.Error = "failed to begin transaction"
		return res
	}
	rolledBack := true
	defer func() {
		if rolledBack {
			tx.Rollback(ctx)
		}
	}()

	batchID := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO comm_imports (id, insurer_id, fortnight_id, is_life, file_name, file_sha256, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)`,
		batchID, insurer.ID, fortnightID, isLife, fh.Filename, fileHash, total.StringFixed(2))
	if err != nil {
		res.Error = "failed to insert import batch: " + err.Error()
		return res
	}

	batch := &pgx.Batch{}
	for _, rr := range rows {
		rawJSON, _ := json.Marshal(rr.row.Raw)
		var brokerID *string
		if rr.r.BrokerID != "" {
			id := rr.r.BrokerID
			brokerID = &id
		}
		var percent *string
		if rr.r.PercentOverride != nil {
			p := rr.r.PercentOverride.String()
			percent = &p
		}
		batch.Queue(`
			INSERT INTO comm_items
				(id, import_id, insurer_id, policy_number, insured_name,
				 gross_amount, percent_applied, broker_id, raw_row)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)`,
			uuid.New().String(), batchID, insurer.ID, rr.row.PolicyNumber, rr.row.ClientName,
			rr.row.GrossAmount.StringFixed(2), percent, brokerID, rawJSON)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		res.Error = "failed to insert items: " + err.Error()
		return res
	}
	if err := tx.Commit(ctx); err != nil {
		res.Error = "commit failed: " + err.Error()
		return res
	}
	rolledBack = false

	res.BatchID = batchID
	res.RowsImported = len(rows)
	res.RowsUnidentified = unidentified
	res.TotalAmount = total.StringFixed(2)
	return res
}

func parseFile(
	ctx context.Context,
	data []byte,
	filename, formatHint string,
	insurer insurerInfo,
	engineCfg *config.EngineConfig,
) (parsers.Result, error) {
	switch formatHint {
	case "tabular":
		return parsers.ParseTabular(data, filename, parsers.TabularConfig{
			Insurer:         insurer.Name,
			PolicyAliases:   insurer.PolicyAliases,
			InsuredAliases:  insurer.InsuredAliases,
			AmountAliases:   insurer.AmountAliases,
			InvertNegatives: insurer.InvertNegatives,
		})
	case "multisection":
		return parsers.ParseMultiSection(data, filename, parsers.MultiSectionConfig{
			Insurer:         insurer.Name,
			PolicyLabels:    insurer.PolicyAliases,
			InsuredLabels:   insurer.InsuredAliases,
			AmountLabels:    insurer.AmountAliases,
			TotalMarker:     engineCfg.SectionTotalMarker,
			Epsilon:         engineCfg.AmountEpsilon,
			InvertNegatives: insurer.InvertNegatives,
		})
	case "ocr":
		rule, ok := engineCfg.OCRRules[strings.ToUpper(insurer.Name)]
		if !ok {
			return parsers.Result{}, fmt.Errorf("no OCR rule configured for insurer %s", insurer.Name)
		}
		rule.Insurer = insurer.Name
		text := string(data)
		if ocrExtractor != nil && strings.EqualFold(filepath.Ext(filename), ".pdf") {
			extractCtx, cancel := context.WithTimeout(ctx, ocrExtractTimeout)
			defer cancel()
			extracted, err := ocrExtractor.ExtractText(extractCtx, data)
			if err != nil {
				return parsers.Result{}, fmt.Errorf("text extraction failed: %w", err)
			}
			text = extracted
		}
		return parsers.ParseOCRText(text, rule)
	default:
		return parsers.Result{}, fmt.Errorf("unknown format hint %q", formatHint)
	}
}

func loadInsurer(ctx context.Context, db querier, insurerID string) (insurerInfo, error) {
	info := insurerInfo{ID: insurerID}
	err := db.QueryRow(ctx,
		`SELECT name, invert_negatives FROM insurers WHERE id = $1`, insurerID,
	).Scan(&info.Name, &info.InvertNegatives)
	if err != nil {
		return info, err
	}
	rows, err := db.Query(ctx, `
		SELECT target_field, alias FROM insurer_mapping_rules
		WHERE insurer_id = $1 ORDER BY target_field, priority`, insurerID)
	if err != nil {
		return info, err
	}
	defer rows.Close()
	for rows.Next() {
		var field, alias string
		if err := rows.Scan(&field, &alias); err != nil {
			return info, err
		}
		switch field {
		case "policy":
			info.PolicyAliases = append(info.PolicyAliases, alias)
		case "insured":
			info.InsuredAliases = append(info.InsuredAliases, alias)
		case "amount":
			info.AmountAliases = append(info.AmountAliases, alias)
		}
	}
	return info, rows.Err()
}

// Handler: DeleteImport removes an import batch, its items and the derived
// totals of its fortnight, so the period can be re-ingested after a
// correction. Cleanup and re-ingest are an operator workflow and must not
// overlap.
func DeleteImport(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodDelete {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "DELETE required")
			return
		}
		importID := r.URL.Query().Get("import_id")
		if importID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "import_id is required")
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

		var fortnightID, status string
		err = tx.QueryRow(ctx, `
			SELECT f.id::text, f.status FROM comm_imports i
			JOIN fortnights f ON f.id = i.fortnight_id
			WHERE i.id = $1`, importID).Scan(&fortnightID, &status)
		if err == pgx.ErrNoRows {
			api.RespondWithError(w, http.StatusNotFound, constants.ErrImportNotFound)
			return
		}
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if status != "DRAFT" {
			api.RespondWithError(w, http.StatusConflict, constants.ErrImportOfPaid)
			return
		}

		// comm_items cascade from the import; derived totals are dropped so
		// the next recalculation starts clean.
		if _, err := tx.Exec(ctx, `DELETE FROM fortnight_broker_totals WHERE fortnight_id = $1`, fortnightID); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if _, err := tx.Exec(ctx, `DELETE FROM comm_imports WHERE id = $1`, importID); err != nil {
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
