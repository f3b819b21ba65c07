// Package docstore persists whole JSON documents to a single file.
//
// Writes go through a temp file in the same directory followed by an atomic
// rename, so a reader always sees either the previous or the new document.
// Loading never fails on a damaged file: the bytes are moved aside as
// <name>.corrupt-<unix> and an empty document is returned instead.
//
// A File serializes every load/mutate/save sequence behind one mutex. There is
// no cache; each call reads the file again.
package docstore
