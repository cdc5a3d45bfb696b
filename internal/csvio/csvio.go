package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"asset-ledger-backend/internal/model"
)

// The ledger exchange format keeps the column headers of the customer's
// original spreadsheets.
var headers = []string{
	"資産番号", "取得年月日", "取得金額", "寿命年数", "設備名", "工場",
	"カタログ名", "説明", "建物", "フロア", "G", "U", "T",
	"ステータス", "入力者", "担当者", "更新日時",
}

var statusLabels = map[model.AssetStatus]string{
	model.StatusUnfilled:      "未入力",
	model.StatusPendingReview: "確認待ち",
	model.StatusApproved:      "承認済み",
	model.StatusRejected:      "差し戻し",
}

var statusByLabel = map[string]model.AssetStatus{
	"未入力":            model.StatusUnfilled,
	"確認待ち":           model.StatusPendingReview,
	"承認済み":           model.StatusApproved,
	"差し戻し":           model.StatusRejected,
	"unfilled":       model.StatusUnfilled,
	"pending_review": model.StatusPendingReview,
	"approved":       model.StatusApproved,
	"rejected":       model.StatusRejected,
}

// Import parses a ledger CSV into assets. A broken file aborts the import;
// per-row problems are sanitized instead: unparseable numbers become unset,
// fully blank rows are skipped, a blank asset number gets a generated
// placeholder. An import that produces no rows at all is an error.
func Import(r io.Reader, now time.Time) ([]model.Asset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}
	if _, ok := index["資産番号"]; !ok {
		return nil, fmt.Errorf("CSV header row is missing the 資産番号 column")
	}

	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var assets []model.Asset
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}

		assetNumber := cell(row, "資産番号")
		if assetNumber == "" {
			assetNumber = fmt.Sprintf("CSV-%d", n+1)
		}
		inputBy := cell(row, "入力者")
		if inputBy == "" {
			inputBy = "未入力"
		}
		assignedTo := cell(row, "担当者")
		if assignedTo == "" {
			assignedTo = inputBy
		}

		assets = append(assets, model.Asset{
			ID:                assetNumber,
			AssetNumber:       assetNumber,
			AcquisitionDate:   cell(row, "取得年月日"),
			AcquisitionAmount: parseAmount(cell(row, "取得金額")),
			LifespanYears:     parseCount(cell(row, "寿命年数")),
			EquipmentName:     cell(row, "設備名"),
			Factory:           cell(row, "工場"),
			CatalogName:       cell(row, "カタログ名"),
			Description:       cell(row, "説明"),
			Building:          cell(row, "建物"),
			Floor:             cell(row, "フロア"),
			G:                 parseScore(cell(row, "G")),
			U:                 parseScore(cell(row, "U")),
			T:                 parseScore(cell(row, "T")),
			Status:            parseStatus(cell(row, "ステータス")),
			InputBy:           inputBy,
			AssignedTo:        assignedTo,
			UpdatedAt:         parseTimestamp(cell(row, "更新日時"), now),
		})
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("CSV contained no importable rows")
	}
	return assets, nil
}

// Export writes assets in the same column layout Import reads. encoding/csv
// quotes values containing commas or quotes and doubles inner quotes.
func Export(w io.Writer, assets []model.Asset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, a := range assets {
		row := []string{
			a.AssetNumber,
			a.AcquisitionDate,
			formatInt64Ptr(a.AcquisitionAmount),
			formatIntPtr(a.LifespanYears),
			a.EquipmentName,
			a.Factory,
			a.CatalogName,
			a.Description,
			a.Building,
			a.Floor,
			formatIntPtr(a.G),
			formatIntPtr(a.U),
			formatIntPtr(a.T),
			statusLabels[a.Status],
			a.InputBy,
			a.AssignedTo,
			a.UpdatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", a.AssetNumber, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseAmount(v string) *int64 {
	normalized := strings.ReplaceAll(v, ",", "")
	if normalized == "" {
		return nil
	}
	n, err := strconv.ParseInt(normalized, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseCount(v string) *int {
	normalized := strings.ReplaceAll(v, ",", "")
	if normalized == "" {
		return nil
	}
	n, err := strconv.Atoi(normalized)
	if err != nil {
		return nil
	}
	return &n
}

func parseScore(v string) *int {
	n := parseCount(v)
	if n == nil || *n < 1 || *n > 5 {
		return nil
	}
	return n
}

func parseStatus(v string) model.AssetStatus {
	if s, ok := statusByLabel[v]; ok {
		return s
	}
	return model.StatusUnfilled
}

func parseTimestamp(v string, now time.Time) time.Time {
	if v == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006/01/02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return now
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
