package pgstore

import (
	"encoding/json"

	"medtutor/internal/domain"
)

type citationRow struct {
	ChunkID    string  `json:"chunk_id"`
	Source     string  `json:"source"`
	Page       *int    `json:"page,omitempty"`
	Similarity float64 `json:"similarity"`
}

func marshalCitations(cs []domain.Citation) ([]byte, error) {
	rows := make([]citationRow, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, citationRow{ChunkID: c.ChunkID, Source: c.Source, Page: c.Page, Similarity: c.Similarity})
	}
	return json.Marshal(rows)
}

func unmarshalCitations(b []byte) ([]domain.Citation, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var rows []citationRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Citation, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Citation{ChunkID: r.ChunkID, Source: r.Source, Page: r.Page, Similarity: r.Similarity})
	}
	return out, nil
}
