// Package catalog holds the built-in components and the record schemas they
// exchange.
package catalog

import "github.com/dramaproject/drama/datatype"

// Module keys of the built-in components.
const (
	ModuleImportFile           = "drama.catalog.load.ImportFile"
	ModuleImportTSV            = "drama.catalog.load.ImportTSV"
	ModuleReadTSV              = "drama.catalog.read.ReadTSV"
	ModulePointPublisher       = "drama.catalog.points.PointPublisher"
	ModulePointReader          = "drama.catalog.points.PointReader"
	ModuleStreamingPointReader = "drama.catalog.points.StreamingPointReader"
	ModuleDynamicParameter     = "drama.catalog.util.DynamicParameter"
	ModuleRevokeExecution      = "drama.catalog.util.RevokeExecution"
)

const schemaNamespace = "drama.catalog.model"

// TempFile locates a file staged in storage.
var TempFile = datatype.MustSchema("TempFile",
	[]datatype.Field{
		datatype.NewField("resource", datatype.String()),
	},
	datatype.WithNamespace(schemaNamespace),
)

// CompressedFile locates an archive staged in storage.
var CompressedFile = datatype.MustSchema("CompressedFile",
	[]datatype.Field{
		datatype.NewField("resource", datatype.String()),
		datatype.NewField("file_format", datatype.String(), datatype.WithDefault(".zip")),
	},
	datatype.WithNamespace(schemaNamespace),
)

// SimpleTabularDataset locates a delimited text dataset.
var SimpleTabularDataset = datatype.MustSchema("SimpleTabularDataset",
	[]datatype.Field{
		datatype.NewField("resource", datatype.String()),
		datatype.NewField("delimiter", datatype.String()),
		datatype.NewField("encoding", datatype.String(), datatype.WithDefault("utf-8")),
		datatype.NewField("file_format", datatype.String(), datatype.WithDefault(".csv")),
	},
	datatype.WithNamespace(schemaNamespace),
)

// DynamicParameterValue carries a value received interactively at runtime.
var DynamicParameterValue = datatype.MustSchema("DynamicParameter",
	[]datatype.Field{
		datatype.NewField("value", datatype.String()),
	},
	datatype.WithNamespace(schemaNamespace),
)

// Point is a cartesian coordinate used by the example publishers.
var Point = datatype.MustSchema("Point",
	[]datatype.Field{
		datatype.NewField("x", datatype.Int()),
		datatype.NewField("y", datatype.Int()),
		datatype.NewField("z", datatype.Int(), datatype.WithDefault(0)),
	},
	datatype.WithNamespace(schemaNamespace),
)
