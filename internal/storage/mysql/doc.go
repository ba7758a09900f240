// Package mysql persists agent conversation turns. It ships a JSON-lines
// file repository for single-node use and a MySQL repository backed by
// embedded, versioned schema migrations.
package mysql
