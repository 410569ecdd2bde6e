package app

import (
	"github.com/specialistvlad/studygrid/internal/registry"
	"github.com/specialistvlad/studygrid/modules/carbonemissions"
	"github.com/specialistvlad/studygrid/modules/damage"
	"github.com/specialistvlad/studygrid/modules/testdiscs"
)

// coreModules is the definitive list of all discipline modules compiled
// into the studygrid binary.
var coreModules = []registry.Module{
	&testdiscs.Module{},
	&damage.Module{},
	&carbonemissions.Module{},
}
