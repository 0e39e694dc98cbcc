// Package prefs is the durable local cache: the remembered active list, the
// joined share codes and list collection for the single-user fallback, and
// display preferences. Everything is keyed by fixed string names so values
// survive a restart.
package prefs

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"chicklist/internal/model"
)

const (
	keyActiveListID = "active_list_id"
	keyShareCodes   = "share_codes"
	keyLists        = "grocery_lists"
	keyDisplayMode  = "display_mode"
	keyDarkMode     = "dark_mode"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the stored value, or "" when the key has never been set.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pref %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set pref %q: %w", key, err)
	}
	return nil
}

func (s *Store) ActiveListID() (string, error) {
	return s.Get(keyActiveListID)
}

func (s *Store) SetActiveListID(id string) error {
	return s.Set(keyActiveListID, id)
}

// ShareCodes returns the locally remembered joined codes.
func (s *Store) ShareCodes() ([]string, error) {
	raw, err := s.Get(keyShareCodes)
	if err != nil || raw == "" {
		return nil, err
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, fmt.Errorf("decode share codes: %w", err)
	}
	return codes, nil
}

func (s *Store) SetShareCodes(codes []string) error {
	data, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("encode share codes: %w", err)
	}
	return s.Set(keyShareCodes, string(data))
}

// Lists returns the JSON-encoded list collection kept for the single-user
// fallback configuration.
func (s *Store) Lists() ([]model.List, error) {
	raw, err := s.Get(keyLists)
	if err != nil || raw == "" {
		return nil, err
	}
	var lists []model.List
	if err := json.Unmarshal([]byte(raw), &lists); err != nil {
		return nil, fmt.Errorf("decode lists: %w", err)
	}
	return lists, nil
}

func (s *Store) SetLists(lists []model.List) error {
	data, err := json.Marshal(lists)
	if err != nil {
		return fmt.Errorf("encode lists: %w", err)
	}
	return s.Set(keyLists, string(data))
}

func (s *Store) DisplayMode() (model.DisplayMode, error) {
	raw, err := s.Get(keyDisplayMode)
	if err != nil {
		return "", err
	}
	switch model.DisplayMode(raw) {
	case model.DisplayByAisle:
		return model.DisplayByAisle, nil
	case model.DisplayAll:
		return model.DisplayAll, nil
	default:
		return model.DisplayByCategory, nil
	}
}

func (s *Store) SetDisplayMode(mode model.DisplayMode) error {
	return s.Set(keyDisplayMode, string(mode))
}

func (s *Store) DarkMode() (bool, error) {
	raw, err := s.Get(keyDarkMode)
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

func (s *Store) SetDarkMode(on bool) error {
	if on {
		return s.Set(keyDarkMode, "true")
	}
	return s.Set(keyDarkMode, "false")
}
