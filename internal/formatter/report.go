package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// ReportToCSV renders a job's sync records as CSV, one row per track,
// ordered by source track ID for stable output.
func ReportToCSV(records []*models.SyncRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"SourceTrack", "DestPlaylist", "Status", "MatchedTrack", "Confidence", "Attempts", "Reason"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range sortedRecords(records) {
		row := []string{
			r.Key.SourceTrackID,
			r.Key.DestPlaylistID,
			string(r.Status),
			r.MatchedTrackID,
			fmt.Sprintf("%.3f", r.Confidence),
			fmt.Sprintf("%d", r.AttemptCount),
			r.Reason,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ReportToMarkdown renders a job's sync records as a Markdown summary
// with a status breakdown and a table of non-terminal rows that need
// attention.
func ReportToMarkdown(jobID string, records []*models.SyncRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Sync Report %s\n\n", jobID))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(records)))

	byStatus := make(map[models.SyncStatus]int)
	for _, r := range records {
		byStatus[r.Status]++
	}
	buf.WriteString("## Outcomes\n\n")
	for _, status := range []models.SyncStatus{
		models.StatusAdded, models.StatusAlreadyPresent, models.StatusMatched,
		models.StatusAmbiguous, models.StatusUnmatched,
	} {
		if n := byStatus[status]; n > 0 {
			buf.WriteString(fmt.Sprintf("- %s: %d\n", status, n))
		}
	}

	pending := make([]*models.SyncRecord, 0)
	for _, r := range sortedRecords(records) {
		if !r.Status.Terminal() {
			pending = append(pending, r)
		}
	}
	if len(pending) > 0 {
		buf.WriteString("\n## Needs Attention\n\n")
		buf.WriteString("| Source Track | Status | Confidence | Reason |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, r := range pending {
			buf.WriteString(fmt.Sprintf("| %s | %s | %.2f | %s |\n",
				r.Key.SourceTrackID, r.Status, r.Confidence, r.Reason))
		}
	}

	return buf.Bytes(), nil
}

// ReportToJSON renders a job's sync records as indented JSON.
func ReportToJSON(records []*models.SyncRecord) ([]byte, error) {
	return shared.MarshalJSON(sortedRecords(records), true)
}

func sortedRecords(records []*models.SyncRecord) []*models.SyncRecord {
	sorted := make([]*models.SyncRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Key.DestPlaylistID != sorted[j].Key.DestPlaylistID {
			return sorted[i].Key.DestPlaylistID < sorted[j].Key.DestPlaylistID
		}
		return sorted[i].Key.SourceTrackID < sorted[j].Key.SourceTrackID
	})
	return sorted
}
