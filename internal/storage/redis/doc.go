// Package redis keeps contract ABIs in Redis so several daemons pointed at the
// same chain share one cache.
package redis
