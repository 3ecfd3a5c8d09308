// Package storage keeps per-guild bot state and the command hash cache on top
// of the JSON datastore.
package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/interactions/datastore"
)

const commandHistoryLimit = 20

const (
	guildPrefix = "guild:"
	hashPrefix  = "cmdhash:"
)

type Storage struct {
	ds *datastore.Store
}

type CommandHistoryRecord struct {
	ExecutionID string    `json:"execution_id"`
	ChannelID   string    `json:"channel_id"`
	GuildID     string    `json:"guild_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Command     string    `json:"command"`
	Kind        string    `json:"kind"`
	Result      string    `json:"result"`
	Datetime    time.Time `json:"datetime"`
}

type Record struct {
	CommandsHistory []CommandHistoryRecord `json:"cmd_history"`
	ModulesDisabled []string               `json:"modules_disabled"`
}

func New(path string, logger zerolog.Logger) (*Storage, error) {
	ds, err := datastore.Open(datastore.DefaultConfig(path, logger))
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

// Wrap uses an already opened datastore.
func Wrap(ds *datastore.Store) *Storage { return &Storage{ds: ds} }

func (s *Storage) Close() error {
	return s.ds.Close()
}

func (s *Storage) updateGuild(guildID string, fn func(r *Record) error) error {
	return datastore.Update(s.ds, guildPrefix+guildID, fn)
}

func (s *Storage) guild(guildID string) (Record, error) {
	var r Record
	if _, err := s.ds.Get(guildPrefix+guildID, &r); err != nil {
		return Record{}, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return r, nil
}

// AppendCommandHistory stores rec, keeping the newest entries only.
func (s *Storage) AppendCommandHistory(guildID string, rec CommandHistoryRecord) error {
	return s.updateGuild(guildID, func(r *Record) error {
		r.CommandsHistory = append(r.CommandsHistory, rec)
		if n := len(r.CommandsHistory); n > commandHistoryLimit {
			r.CommandsHistory = r.CommandsHistory[n-commandHistoryLimit:]
		}
		return nil
	})
}

// CommandHistory returns the history of guildID, oldest first.
func (s *Storage) CommandHistory(guildID string) ([]CommandHistoryRecord, error) {
	r, err := s.guild(guildID)
	return r.CommandsHistory, err
}

func (s *Storage) DisableModule(guildID, module string) error {
	return s.updateGuild(guildID, func(r *Record) error {
		if !slices.Contains(r.ModulesDisabled, module) {
			r.ModulesDisabled = append(r.ModulesDisabled, module)
		}
		return nil
	})
}

func (s *Storage) EnableModule(guildID, module string) error {
	return s.updateGuild(guildID, func(r *Record) error {
		r.ModulesDisabled = slices.DeleteFunc(r.ModulesDisabled, func(m string) bool { return m == module })
		return nil
	})
}

func (s *Storage) IsModuleDisabled(guildID, module string) (bool, error) {
	r, err := s.guild(guildID)
	if err != nil {
		return false, err
	}
	return slices.Contains(r.ModulesDisabled, module), nil
}

func (s *Storage) DisabledModules(guildID string) ([]string, error) {
	r, err := s.guild(guildID)
	return r.ModulesDisabled, err
}

// LoadHash returns the payload hash last uploaded for scope.
func (s *Storage) LoadHash(scope string) (string, bool) {
	var h string
	ok, err := s.ds.Get(hashPrefix+scope, &h)
	if err != nil || !ok {
		return "", false
	}
	return h, true
}

// SaveHash records the payload hash uploaded for scope and flushes it.
func (s *Storage) SaveHash(scope, hash string) error {
	if err := s.ds.Put(hashPrefix+scope, hash); err != nil {
		return err
	}
	return s.ds.Flush()
}
