// Package cmdsync computes what to upload when synchronizing application
// commands with the platform. It never talks to the network.
package cmdsync

import (
	"cmp"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// Diff returns the payload for a bulk overwrite. With deleteMissing the
// desired set is uploaded as is, so remote commands absent from it are
// deleted. Otherwise every existing command whose name matches no desired
// command is carried over as creation properties and survives the overwrite.
func Diff(desired, existing []*discordgo.ApplicationCommand, deleteMissing bool) []*discordgo.ApplicationCommand {
	out := slices.Clone(desired)
	if deleteMissing {
		return out
	}

	names := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		names[d.Name] = struct{}{}
	}
	for _, e := range existing {
		if e == nil {
			continue
		}
		if _, ok := names[e.Name]; ok {
			continue
		}
		out = append(out, CreationProps(e))
	}
	return out
}

// CreationProps strips the server assigned fields of a fetched command so it
// can be sent back in an overwrite.
func CreationProps(c *discordgo.ApplicationCommand) *discordgo.ApplicationCommand {
	cp := *c
	cp.ID = ""
	cp.ApplicationID = ""
	cp.GuildID = ""
	cp.Version = ""
	return &cp
}

// Hash returns a deterministic SHA-1 of the stable fields of cmds. The order
// of cmds does not matter.
func Hash(cmds []*discordgo.ApplicationCommand) string {
	normalized := make([]map[string]any, 0, len(cmds))
	for _, c := range cmds {
		if c != nil {
			normalized = append(normalized, normalizeCommand(c))
		}
	}
	slices.SortFunc(normalized, func(a, b map[string]any) int {
		if c := cmp.Compare(a["type"].(discordgo.ApplicationCommandType), b["type"].(discordgo.ApplicationCommandType)); c != 0 {
			return c
		}
		return cmp.Compare(a["name"].(string), b["name"].(string))
	})

	data, _ := json.Marshal(normalized)
	sum := sha1.Sum(data)
	return fmt.Sprintf("%x", sum)
}

func normalizeCommand(c *discordgo.ApplicationCommand) map[string]any {
	typ := c.Type
	if typ == 0 {
		typ = discordgo.ChatApplicationCommand
	}
	obj := map[string]any{
		"name":        c.Name,
		"description": c.Description,
		"type":        typ,
	}
	if c.DefaultMemberPermissions != nil {
		obj["default_member_permissions"] = *c.DefaultMemberPermissions
	}
	if len(c.Options) > 0 {
		obj["options"] = normalizeOptions(c.Options)
	}
	return obj
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]any {
	out := make([]map[string]any, len(opts))
	for i, o := range opts {
		entry := map[string]any{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]any, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]any{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
