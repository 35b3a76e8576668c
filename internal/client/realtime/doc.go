// Package realtime keeps one logical chat subscription alive across
// connection drops.
//
// A Manager owns a single Transport, built lazily on the first Connect with
// the Manager's reconnect and message callbacks. When the transport reports a
// reconnect, the Manager re-subscribes the currently recorded topic, once per
// event. Inbound messages go to a single handler set with OnMessage.
//
// WSTransport is the websocket implementation (coder/websocket). It pulls
// the access token from a TokenProvider at every dial and re-dials with
// exponential backoff after an unexpected disconnect.
package realtime
