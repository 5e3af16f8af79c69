// Package redisstore implements the token store on Redis.
//
// Each record is a JSON document under its own key, indexed by a hash of the
// token value, by owner and by expiry. Revocation is an optimistic WATCH/MULTI
// transaction retried on contention, so of N concurrent revocations of one
// record exactly one succeeds.
package redisstore
