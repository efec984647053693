/*
Package ipc is the inter-process substrate the framework runs on.

# Overview

Remote objects are published with Registry.Register and addressed through
opaque Handle values. A call is a Transact of an opcode with a request Parcel;
synchronous calls get a reply Parcel, calls with Option.Async run one-way.

Parcels hold an ordered sequence of typed fields encoded with protowire.
Every field carries its kind, so a receiver reading a different type than the
sender wrote fails with ERROR_EX_PARCELABLE at that field.

# Death notification

DeathWatcher arms a callback that runs once when the owner of a handle dies
(Registry.Kill / KillProcess). Callbacks run on their own goroutine and must
only enqueue work:

	watcher := ipc.NewDeathWatcher(registry)
	err := watcher.Watch(clientHandle, func(h ipc.Handle) {
		queue.Push(message.New(message.MsgClientDied, payloadFor(h)))
	})
*/
package ipc
