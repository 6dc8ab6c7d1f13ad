// package formatter exports normalized playlist data to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
)

// Export pairs playlist metadata with its normalized track listing.
type Export struct {
	Playlist models.Playlist      `json:"playlist"`
	Tracks   *models.TracksResult `json:"tracks"`
}

// clock renders a millisecond duration as m:ss.
func clock(ms int) string {
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ToCSV renders the track listing as CSV with columns: ID, Name, Artist, Album, Duration, ISRC.
func ToCSV(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks.Tracks {
		record := []string{
			track.ID,
			track.Name,
			track.Artist,
			track.Album,
			strconv.Itoa(track.DurationMS),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown renders the playlist and track listing as a Markdown document.
func ToMarkdown(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", export.Playlist.Name))

	if export.Playlist.Description != "" {
		buf.WriteString(fmt.Sprintf("**Description**: %s\n\n", export.Playlist.Description))
	}

	buf.WriteString(fmt.Sprintf("**Service**: %s\n", export.Playlist.Service))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", export.Tracks.Total))
	if export.Tracks.Skipped != nil && export.Tracks.Skipped.Total > 0 {
		buf.WriteString(fmt.Sprintf("**Skipped**: %d\n", export.Tracks.Skipped.Total))
	}
	buf.WriteString("\n## Tracks\n\n")

	for i, track := range export.Tracks.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Name, albumPart, clock(track.DurationMS)))
	}

	return buf.Bytes(), nil
}

// ToText renders the playlist and track listing as plain text.
func ToText(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", export.Playlist.Name))
	if export.Playlist.Description != "" {
		buf.WriteString(fmt.Sprintf("Description: %s\n", export.Playlist.Description))
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", export.Tracks.Total))

	for i, track := range export.Tracks.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.Artist, track.Name))
	}

	return buf.Bytes(), nil
}

// ToMetadataJSON renders playlist metadata (without tracks) as indented JSON.
func ToMetadataJSON(playlist models.Playlist) ([]byte, error) {
	return json.MarshalIndent(playlist, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport.
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport writes {base}_tracks.csv and {base}_metadata.json. The base
// filename defaults to the playlist ID.
func WriteCSVExport(export *Export, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Playlist.ID
	}

	csvData, err := ToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export.Playlist)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// WriteMarkdownExport writes {base}.md. The base filename defaults to the
// playlist ID.
func WriteMarkdownExport(export *Export, baseFilepath string) (string, error) {
	if baseFilepath == "" {
		baseFilepath = export.Playlist.ID
	}

	mdData, err := ToMarkdown(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := baseFilepath + ".md"
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return mdFile, nil
}

// WriteTextExport writes {base}_tracks.txt. The base filename defaults to
// the playlist ID.
func WriteTextExport(export *Export, baseFilepath string) (string, error) {
	if baseFilepath == "" {
		baseFilepath = export.Playlist.ID
	}

	textData, err := ToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	textFile := baseFilepath + "_tracks.txt"
	if err := os.WriteFile(textFile, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return textFile, nil
}
