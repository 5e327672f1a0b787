package catalog

import (
	"github.com/dramaproject/drama/component"
	"github.com/dramaproject/drama/datatype"
)

// Register adds every built-in component to the registry.
func Register(registry *component.Registry) {
	registry.MustRegister(component.Component{
		Name:        ModuleImportFile,
		Description: "Imports a file from an online resource given its url.",
		Outputs:     []*datatype.Schema{TempFile},
		Params: []component.Param{
			{Name: "url", Description: "Public accessible resource", Required: true},
			{Name: "parameters", Description: "GET parameters to append to url"},
		},
		Execute: importFile,
	})

	registry.MustRegister(component.Component{
		Name:        ModuleImportTSV,
		Description: "Imports a tab-separated values file from an online resource given its url.",
		Outputs:     []*datatype.Schema{SimpleTabularDataset},
		Params: []component.Param{
			{Name: "url", Description: "Public accessible resource", Required: true},
			{Name: "delimiter", Description: "Line column delimiter"},
			{Name: "comment", Description: "Character starting a comment"},
		},
		Execute: importTSV,
	})

	registry.MustRegister(component.Component{
		Name:        ModuleReadTSV,
		Description: "Reads a TSV file received from upstream.",
		Inputs:      map[string]*datatype.Schema{"TabularDataset": SimpleTabularDataset},
		Execute:     readTSV,
	})

	registry.MustRegister(component.Component{
		Name:        ModulePointPublisher,
		Description: "Publishes cartesian points downstream.",
		Outputs:     []*datatype.Schema{Point},
		Params: []component.Param{
			{Name: "x", Description: "x-cartesian coordinate", Required: true},
			{Name: "y", Description: "y-cartesian coordinate", Required: true},
		},
		Execute: pointPublisher,
	})

	registry.MustRegister(component.Component{
		Name:        ModulePointReader,
		Description: "Reads cartesian points from upstream.",
		Inputs:      map[string]*datatype.Schema{"Points": Point},
		Execute:     pointReader,
	})

	registry.MustRegister(component.Component{
		Name:        ModuleStreamingPointReader,
		Description: "Reads cartesian points from upstream as they arrive.",
		Inputs:      map[string]*datatype.Schema{"Points": Point},
		Execute:     streamingPointReader,
	})

	registry.MustRegister(component.Component{
		Name:        ModuleDynamicParameter,
		Description: "Waits for a value published on the task's own topic.",
		Outputs:     []*datatype.Schema{DynamicParameterValue},
		Execute:     dynamicParameter,
	})

	registry.MustRegister(component.Component{
		Name:        ModuleRevokeExecution,
		Description: "Broadcasts a global interruption signal on the workflow topic.",
		Execute:     revokeExecution,
	})
}
