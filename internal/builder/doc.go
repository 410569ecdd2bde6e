/*
Package builder holds the immutable templates the engine instantiates into
discipline nodes.

A Builder is a (name, kind, module path, namespace bindings, sub-builders)
tuple. It never changes once created: rebasing a builder under a scenario or
under a mono-instance evaluator produces a new Builder with new namespace
IDs, leaving the original template usable for the next instantiation.

There are three kinds:

 1. Discipline: resolves its module path through the registry into a model.
 2. Coupling: groups sub-builders into one MDA chain.
 3. Driver: the evaluator whose builder_mode input decides how the
    sub-builders are instantiated (one sampled sub-process, one scatter of
    scenario sub-trees, or a plain build).
*/
package builder
