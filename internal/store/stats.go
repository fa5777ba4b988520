package store

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

const topAvatars = 3

type ItemCount struct {
	ID         string  `json:"id"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type AvatarCount struct {
	AvatarID   string  `json:"avatar_id"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Stats ranks saved items and avatars by how many users picked them.
type Stats struct {
	SavedItems []ItemCount   `json:"saved_items"`
	Avatars    []AvatarCount `json:"avatars"`
	TotalUsers int           `json:"total_users"`
}

// Stats aggregates the saved and avatar values of every record. Ties are
// ordered by id.
func (s *Store) Stats() (Stats, error) {
	records, err := s.All()
	if err != nil {
		return Stats{}, fmt.Errorf("generate stats: %w", err)
	}

	saved := make(map[string]int)
	avatars := make(map[string]int)
	for _, record := range records {
		switch v := record["saved"].(type) {
		case []any:
			for _, item := range v {
				saved[formatID(item)]++
			}
		case string, float64:
			saved[formatID(v)]++
		}
		if avatar, ok := record["avatar"]; ok {
			avatars[formatID(avatar)]++
		}
	}

	total := len(records)
	stats := Stats{
		SavedItems: []ItemCount{},
		Avatars:    []AvatarCount{},
		TotalUsers: total,
	}
	for _, e := range rank(saved) {
		stats.SavedItems = append(stats.SavedItems, ItemCount{ID: e.id, Count: e.count, Percentage: percentage(e.count, total)})
	}
	for i, e := range rank(avatars) {
		if i == topAvatars {
			break
		}
		stats.Avatars = append(stats.Avatars, AvatarCount{AvatarID: e.id, Count: e.count, Percentage: percentage(e.count, total)})
	}
	return stats, nil
}

type entry struct {
	id    string
	count int
}

func rank(counts map[string]int) []entry {
	entries := make([]entry, 0, len(counts))
	for id, n := range counts {
		entries = append(entries, entry{id: id, count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].id < entries[j].id
	})
	return entries
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}

func formatID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return "null"
	default:
		return fmt.Sprint(t)
	}
}
