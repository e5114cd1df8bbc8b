// Package cache stores compiled templates by [lang.Key].
//
// [Memory] keeps templates for the life of the process. [FileSystem] and
// [SQLite] persist the artifact of each template and restore it with a
// [Loader], normally a [*lang.Compiler]. Every backend collapses
// concurrent compiles of the same key through [Shared.Do].
package cache
