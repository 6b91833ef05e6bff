// Package schedule describes when a task may run and decides whether a given
// instant falls inside one of its windows.
//
// A Schedule is assembled once through a Builder (or FromSpec for config
// files) and is read-only afterwards. The matcher methods are pure: the same
// instant always yields the same WindowIdentity.
package schedule
