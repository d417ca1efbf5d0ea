/*
Conflate rate-limits keyed update streams for slow consumers.

# Module
  - buffer: per-key latest-value store, insertion-ordered, last write wins
  - subject: fixed-interval flush cycle, multicast delivery, lifecycle
  - by-key adapter: channel-in, channel-out composition over the subject

# Source
 1. market data ticks from the feed pipeline
 2. any producer calling Push(key, value)

# Produce
  - at most one batch per interval, carrying the newest value per changed key
*/
package conflate
