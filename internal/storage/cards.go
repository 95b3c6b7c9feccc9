package storage

import (
	"encoding/json"

	"koin/internal/core"
)

// cardCategoryRow is the JSON shape of a card bucket inside credit_lines.
type cardCategoryRow struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Type        string     `json:"type"`
	Color       string     `json:"color,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Budget      core.Money `json:"budget"`
	InitialDebt core.Money `json:"initial_debt"`
	Shared      bool       `json:"shared,omitempty"`
}

func encodeCardCategories(cats []core.CardCategory) (string, error) {
	rows := make([]cardCategoryRow, len(cats))
	for i, c := range cats {
		rows[i] = cardCategoryRow{
			ID:          c.ID,
			Label:       c.Label,
			Type:        string(c.Type),
			Color:       c.Color,
			Icon:        c.Icon,
			Budget:      c.Budget,
			InitialDebt: c.InitialDebt,
			Shared:      c.Shared,
		}
	}
	b, err := json.Marshal(rows)
	return string(b), err
}

func decodeCardCategories(s string) ([]core.CardCategory, error) {
	if s == "" {
		return nil, nil
	}
	var rows []cardCategoryRow
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, err
	}
	var out []core.CardCategory
	for _, r := range rows {
		out = append(out, core.CardCategory{
			ID:          r.ID,
			Label:       r.Label,
			Type:        core.CardCategoryType(r.Type),
			Color:       r.Color,
			Icon:        r.Icon,
			Budget:      r.Budget,
			InitialDebt: r.InitialDebt,
			Shared:      r.Shared,
		})
	}
	return out, nil
}
