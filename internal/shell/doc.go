// SPDX-License-Identifier: MPL-2.0

// Package shell is the client side of the remote command protocol.
//
// A Command is a handle to one process spawned on the tracker. It records the
// pid from the spawn acknowledgement, accumulates stdout and stderr from push
// notifications and settles its WhenStarted and WhenDone futures exactly
// once. Live commands are kept in a Registry keyed by pid; Services installs
// the push-notification handlers on an l2l peer and routes them to the
// registry, retrying the lookup briefly because a notification can overtake
// the spawn acknowledgement.
package shell
