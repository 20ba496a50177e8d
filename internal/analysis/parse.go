package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var errNoJSONObject = errors.New("aucun objet JSON dans la réponse du modèle")

// ExtractJSONObject returns the outermost {...} of text, ignoring markdown
// code fences and any prose around the object.
func ExtractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}
	return text[start : end+1], nil
}

// flexFloat accepts JSON numbers as well as strings such as "12,50 €".
type flexFloat struct {
	v *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, ok := parseAmount(s)
		if ok {
			f.v = &v
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.v = &v
	return nil
}

// parseAmount reads a decimal that may use a comma separator and carry a currency sign.
func parseAmount(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '-', r == '.', r == ',':
			return r
		}
		return -1
	}, s)
	// The last separator is the decimal point, the other one groups thousands.
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		group := ","
		if s[i] == ',' {
			group = "."
		}
		s = strings.ReplaceAll(s, group, "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"02/01/06",
}

// normalizeDate converts common receipt date spellings to YYYY-MM-DD.
// Day-first layouts are tried before year-first slashes.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if len(s) > 10 && s[4] == '-' {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format("2006-01-02"), true
		}
		s = s[:10]
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

type modelItem struct {
	Name       string    `json:"name"`
	Quantity   flexFloat `json:"quantity"`
	UnitPrice  flexFloat `json:"unit_price"`
	TotalPrice flexFloat `json:"total_price"`
}

type modelResult struct {
	MerchantName       *string     `json:"merchant_name"`
	TransactionDate    *string     `json:"transaction_date"`
	TotalAmount        flexFloat   `json:"total_amount"`
	Items              []modelItem `json:"items"`
	IsAuthentic        *bool       `json:"is_authentic"`
	ConfidenceScore    flexFloat   `json:"confidence_score"`
	SuspiciousElements []string    `json:"suspicious_elements"`
	Analysis           string      `json:"analysis"`
}

// parseModelResult decodes the JSON object found in a model answer and
// requires a merchant name and a transaction date.
func parseModelResult(text string) (*Result, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var mr modelResult
	if err := json.Unmarshal([]byte(obj), &mr); err != nil {
		return nil, fmt.Errorf("réponse du modèle illisible: %w", err)
	}

	res := &Result{
		TotalAmount:        mr.TotalAmount.v,
		SuspiciousElements: mr.SuspiciousElements,
		Analysis:           strings.TrimSpace(mr.Analysis),
		Raw:                obj,
	}
	if mr.MerchantName != nil {
		if name := strings.TrimSpace(*mr.MerchantName); name != "" {
			res.MerchantName = &name
		}
	}
	if mr.TransactionDate != nil {
		if d, ok := normalizeDate(*mr.TransactionDate); ok {
			res.TransactionDate = &d
		}
	}
	if res.MerchantName == nil || res.TransactionDate == nil {
		return nil, ErrMissingFields
	}

	for _, it := range mr.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		res.Items = append(res.Items, Item{
			Name:       name,
			Quantity:   it.Quantity.v,
			UnitPrice:  it.UnitPrice.v,
			TotalPrice: it.TotalPrice.v,
		})
	}

	if mr.ConfidenceScore.v != nil {
		score := *mr.ConfidenceScore.v
		if score > 0 && score < 1 {
			score *= 100
		}
		res.ConfidenceScore = int(math.Round(score))
	}
	if mr.IsAuthentic != nil {
		res.IsAuthentic = *mr.IsAuthentic
	} else {
		res.IsAuthentic = res.ConfidenceScore >= 70
	}
	res.normalize()
	return res, nil
}
