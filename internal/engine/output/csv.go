package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rendis/yelptap/internal/model"
)

var csvHeader = []string{"name", "rating", "num_reviews", "yelp_url", "website", "reviews"}

// EncodeCSV flattens records into CSV with a header row. Reviews are joined as
// "name (location, date)" separated by " | ".
func EncodeCSV(recs []model.BusinessRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range recs {
		row := []string{
			r.Name,
			r.Rating,
			strconv.Itoa(r.NumReviews),
			r.DetailURL,
			r.Website,
			JoinReviews(r.Reviews),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func SaveCSV(path string, recs []model.BusinessRecord) error {
	data, err := EncodeCSV(recs)
	if err != nil {
		return fmt.Errorf("encoding csv: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func JoinReviews(reviews []model.ReviewEntry) string {
	parts := make([]string, 0, len(reviews))
	for _, rv := range reviews {
		var meta []string
		if rv.ReviewerLocation != "" {
			meta = append(meta, rv.ReviewerLocation)
		}
		if rv.ReviewDate != "" {
			meta = append(meta, rv.ReviewDate)
		}
		s := rv.ReviewerName
		if len(meta) > 0 {
			s += " (" + strings.Join(meta, ", ") + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " | ")
}
