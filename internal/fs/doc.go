// Package fs abstracts the handful of filesystem calls the editor makes so
// tests can inject failures at exact byte counts.
//
//   - [LocalFS] is the production implementation over package os.
//   - [FaultyFS] wraps another FileSystem and fails writes, syncs, closes or
//     renames according to per-file rules.
//
// [WriteFileAtomic] is the only way the editor replaces a file: it writes a
// sibling temporary file, syncs it, renames it over the target and syncs the
// directory. Readers of the target see either the old file or the new one.
package fs
