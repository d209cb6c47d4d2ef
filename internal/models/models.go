package models

// All lists every model subject to schema migration.
var All = []interface{}{
	&Task{},
	&Model{},
	&EvalRun{},
}
