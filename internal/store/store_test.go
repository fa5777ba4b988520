package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uidA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	uidB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	uidC = "16fd2706-8baf-433b-82eb-8c7fada847da"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "main.json"))
}

func TestValidateUID(t *testing.T) {
	tests := []struct {
		uid   string
		valid bool
	}{
		{uidA, true},
		{strings.ToUpper(uidA), true},
		{"", false},
		{"not-a-uuid", false},
		{"0f8fad5bd9cb469fa16570867728950e", false},
		{"{" + uidA + "}", false},
		{"urn:uuid:" + uidA, false},
	}
	for _, tt := range tests {
		err := ValidateUID(tt.uid)
		assert.Equal(t, tt.valid, err == nil, "uid %q: %v", tt.uid, err)
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"avatar", "saved_ids", "K9"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", "../etc", "a.b", "javascript:x", "with space", "<script>"} {
		assert.Error(t, ValidateKey(key), key)
	}
}

func TestValidateValue(t *testing.T) {
	bigList := make([]any, 101)
	for i := range bigList {
		bigList[i] = float64(i)
	}
	bigMap := make(map[string]any, 51)
	for i := 0; i < 51; i++ {
		bigMap["k"+strings.Repeat("x", i)] = 1.0
	}

	tests := []struct {
		name  string
		value any
		valid bool
	}{
		{"string", "hello", true},
		{"number", 3.0, true},
		{"bool", true, true},
		{"list of scalars", []any{"a", 1.0, false}, true},
		{"object", map[string]any{"level": 2.0, "tags": []any{"x"}}, true},
		{"nil", nil, false},
		{"script tag", "<SCRIPT src=x>", false},
		{"data uri", "data:text/html,hi", false},
		{"too large", strings.Repeat("a", 10001), false},
		{"list too long", bigList, false},
		{"nested list", []any{[]any{"a"}}, false},
		{"list with bad string", []any{"ok", "javascript:alert(1)"}, false},
		{"object too large", bigMap, false},
		{"object with bad key", map[string]any{"a-b": 1.0}, false},
		{"object with bad value", map[string]any{"a": "<iframe>"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue(tt.value)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestStore_SetGet(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set(uidA, "avatar", "fox"))
	require.NoError(t, s.Set(uidA, "saved", []any{"1", 2.0}))
	require.NoError(t, s.Set(uidA, "avatar", "owl"))

	record, err := s.Get(uidA)
	require.NoError(t, err)
	assert.Equal(t, Record{"avatar": "owl", "saved": []any{"1", 2.0}}, record)

	_, err = s.Get(uidB)
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \""+uidA+"\": {")
}

func TestStore_SetRejectsInvalidInput(t *testing.T) {
	s := newStore(t)

	var ve *ValidationError
	assert.ErrorAs(t, s.Set("nope", "avatar", "fox"), &ve)
	assert.ErrorAs(t, s.Set(uidA, "bad key", "fox"), &ve)
	assert.ErrorAs(t, s.Set(uidA, "avatar", nil), &ve)

	_, err := os.Stat(s.path)
	assert.True(t, os.IsNotExist(err), "nothing is written for invalid input")
}

func TestStore_CorruptedFile(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte(`[1,2]`), 0o644))

	assert.ErrorIs(t, s.Set(uidA, "avatar", "fox"), ErrCorrupted)
	_, err := s.Stats()
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestStore_Stats(t *testing.T) {
	s := newStore(t)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{SavedItems: []ItemCount{}, Avatars: []AvatarCount{}}, stats)

	require.NoError(t, s.Set(uidA, "saved", []any{"3", "1"}))
	require.NoError(t, s.Set(uidA, "avatar", 1.0))
	require.NoError(t, s.Set(uidB, "saved", "3"))
	require.NoError(t, s.Set(uidB, "avatar", 2.0))
	require.NoError(t, s.Set(uidC, "saved", 3.0))
	require.NoError(t, s.Set(uidC, "avatar", 1.0))

	stats, err = s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, []ItemCount{
		{ID: "3", Count: 3, Percentage: 100},
		{ID: "1", Count: 1, Percentage: 33.3},
	}, stats.SavedItems)
	assert.Equal(t, []AvatarCount{
		{AvatarID: "1", Count: 2, Percentage: 66.7},
		{AvatarID: "2", Count: 1, Percentage: 33.3},
	}, stats.Avatars)

	encoded, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"total_users":3`)
}

func TestStore_StatsTopThreeAvatars(t *testing.T) {
	s := newStore(t)
	uids := []string{uidA, uidB, uidC, "9b2f7e0a-3c1d-4e5f-8a6b-7c8d9e0f1a2b"}
	for i, uid := range uids {
		require.NoError(t, s.Set(uid, "avatar", []string{"d", "c", "b", "a"}[i]))
	}

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Len(t, stats.Avatars, 3)
	assert.Equal(t, "a", stats.Avatars[0].AvatarID)
	assert.Equal(t, 25.0, stats.Avatars[0].Percentage)
}
