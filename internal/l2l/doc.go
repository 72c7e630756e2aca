// SPDX-License-Identifier: MPL-2.0

// Package l2l implements a symmetric JSON-lines message transport between
// two peers.
//
// Every message carries an ID, an action and optional JSON data. A message
// whose InResponseTo field is set answers an earlier request; anything else
// is dispatched to the service registered for its action. Services run one
// at a time in arrival order, so push notifications from the remote side are
// observed in send order. Responses are routed by the read loop itself and
// never wait behind a running service.
package l2l
