// Package relay implements the channel-to-destination identifier relay.
//
// An inbound event flows through a fixed pipeline, one event at a time:
//
//	ChannelFilter -> Extractor -> DedupStore.Contains -> Dispatcher ->
//	DedupStore.Record -> Tracker.Apply -> Fanout.Emit
//
// Every identifier found in an accepted event yields exactly one Result
// (Success, Failure or SkippedDuplicate). Only successful relays are
// recorded, so a failed identifier is retried the next time it is seen.
package relay
