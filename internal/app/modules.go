package app

import (
	"github.com/vk/lorapipe/internal/registry"
	"github.com/vk/lorapipe/modules/command"
	"github.com/vk/lorapipe/modules/evaluate"
	"github.com/vk/lorapipe/modules/extract"
	"github.com/vk/lorapipe/modules/finetune"
	"github.com/vk/lorapipe/modules/generate"
)

// coreModules is the definitive list of all stage kinds that are compiled
// into the lorapipe binary.
var coreModules = []registry.Module{
	&finetune.Module{},
	&extract.Module{},
	&generate.Module{},
	&evaluate.Module{},
	&command.Module{},
}
