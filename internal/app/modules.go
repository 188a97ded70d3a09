package app

import (
	"github.com/vk/lmrun/internal/registry"
	"github.com/vk/lmrun/modules/charmlp"
	"github.com/vk/lmrun/modules/logtracker"
	"github.com/vk/lmrun/modules/socketiotracker"
)

// coreModules is the definitive list of all modules that are compiled into
// the lmrun binary.
var coreModules = []registry.Module{
	&charmlp.Module{},
	&logtracker.Module{},
	&socketiotracker.Module{},
}
