// Package content serves book content through a cache-aside pipeline.
//
// A retrieval looks up the variant's digest key. When present, the
// compressed payload is read and inflated. Otherwise the book's source URL
// is resolved from the catalog, fetched, transformed, compressed and
// stored under two keys sharing one TTL:
//
//	{variant}{bookId}     digest of the compressed payload
//	{variant}{bookId}:d   zlib-compressed payload
//
// The digest doubles as the HTTP entity tag, so it stays stable for as long
// as the entry lives.
package content
