// Package rules provides the business rule engine behind domain objects.
//
// An Engine keeps rules per Go type and implements
// domain.ValidationEngineProvider, so it can be handed to Object.Init or
// domain.Reconstruct directly. Rules are Go predicates (NewRule), expressions
// evaluated by expr-lang, cel-go or goja (NewExpressionRule), or validator
// tags applied to one snapshot field (NewTagRule). Rule documents in YAML are
// loaded with LoadDefinitions and applied with Document.Apply.
//
// Rules read their inputs from a snapshot of the target: the map returned by
// Snapshotter, or the JSON form of the target otherwise.
package rules
