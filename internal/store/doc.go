// Package store persists chat messages in PostgreSQL and serves the
// cursor-paginated reads behind the history endpoint.
//
// The write side (Create, Update, SoftDelete, Delete) is called by the CRUD
// layer; the read side (ListPage) is called by the history handler. Pages are
// ordered newest first and a cursor always yields rows strictly older than
// the row it names, so pagination is stable under concurrent writes.
package store
