// Package demo holds the state behind the fiberlab screens: a counter that is
// always updated at high priority, a large list and an expensive sum that are
// rebuilt at low priority, a keyed fruit list that can be prepended to
// immediately or shuffled in the background, and a number list addressed by
// position that shifts every row when a number is prepended. Every piece of
// state lives in a scheduler cell, so the presentation layer only ever reads
// snapshots.
package demo
