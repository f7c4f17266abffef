// Package live streams in-progress profiling runs to WebSocket clients.
//
// The Hub polls a TickSource on a fixed interval and pushes the latest
// tick, as a JSON envelope, to every connected client. Clients that fall
// behind are disconnected rather than allowed to stall the broadcast.
package live
