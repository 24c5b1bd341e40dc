// Package queue persists pipeline runs, their segments and the durable stage
// task queue in SQLite.
//
// Every run status write is conditional on the expected prior status, so
// duplicate or out-of-order stage deliveries cannot move a run backward or
// overwrite COMPLETED. Rows are converted into value structs once, in scan.go;
// callers never see untyped rows.
//
// Schema changes bump the version in schema.go; operators clear the database
// to adopt a new schema.
package queue
