// Package modules declares the commands the bot serves.
package modules

import (
	"errors"

	"github.com/keshon/interactions/internal/discord"
	"github.com/keshon/interactions/internal/middleware"
	"github.com/keshon/interactions/pkg/interactions"
)

var errNoServices = errors.New("modules: handler called without bot services")

// All returns every module, in registration order.
func All(ownerID string, toggles middleware.ModuleToggles) []interactions.Declarer {
	return []interactions.Declarer{
		Core{Toggles: toggles},
		Admin{OwnerID: ownerID},
		Menus{Toggles: toggles},
	}
}

func services(c *interactions.Context) (*discord.Services, error) {
	s, ok := discord.ServicesOf(c)
	if !ok {
		return nil, errNoServices
	}
	return s, nil
}

// Register adds every module to svc.
func Register(svc *interactions.Service, ownerID string, toggles middleware.ModuleToggles) error {
	_, err := svc.AddModules(All(ownerID, toggles)...)
	return err
}
