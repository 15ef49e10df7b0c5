// Package relay synchronizes lighting state between devices over
// NATS.
//
// Each engine publishes its committed frames on
// <prefix>.frames.<device> and listens for remote commands on
// <prefix>.commands.<device>; payloads are msgpack. The relay is
// best-effort by contract: publish failures flip a health flag and
// rendering continues locally, and a NATS reconnect resumes
// publication with no backfill of missed frames.
package relay
