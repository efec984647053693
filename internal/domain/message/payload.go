package message

import (
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// The builders below fix the field order of each payload; the readers
// consume it in the same order.

// UserPayload carries a user id (user start/stop/removed, screen unlock,
// hide keyboard self, restart ime, settings changed).
func UserPayload(userID int32) *ipc.Parcel {
	p := ipc.NewParcel()
	p.WriteInt32(userID)
	return p
}

// ReadUser reads a UserPayload.
func ReadUser(msg *Message) (int32, error) {
	if msg.Payload == nil {
		return 0, errs.Wrap(errs.ErrorNullPointer, "%s has no payload", msg.ID)
	}
	return msg.Payload.ReadInt32()
}

// PackagePayload carries a package event.
func PackagePayload(userID int32, bundleName string) *ipc.Parcel {
	p := UserPayload(userID)
	p.WriteString(bundleName)
	return p
}

// ReadPackage reads a PackagePayload.
func ReadPackage(msg *Message) (userID int32, bundleName string, err error) {
	if userID, err = ReadUser(msg); err != nil {
		return 0, "", err
	}
	bundleName, err = msg.Payload.ReadString()
	return userID, bundleName, err
}

// PairPayload carries a user id and two integers (select by range or by
// movement).
func PairPayload(userID, a, b int32) *ipc.Parcel {
	p := UserPayload(userID)
	p.WriteInt32(a)
	p.WriteInt32(b)
	return p
}

// ReadPair reads a PairPayload.
func ReadPair(msg *Message) (userID, a, b int32, err error) {
	if userID, err = ReadUser(msg); err != nil {
		return 0, 0, 0, err
	}
	if a, err = msg.Payload.ReadInt32(); err != nil {
		return 0, 0, 0, err
	}
	b, err = msg.Payload.ReadInt32()
	return userID, a, b, err
}

// DeathPayload carries a dead peer: the user it belonged to, a role tag
// (IME type for IMEs, zero for clients) and its handle.
func DeathPayload(userID, role int32, h ipc.Handle) *ipc.Parcel {
	p := UserPayload(userID)
	p.WriteInt32(role)
	p.WriteHandle(h)
	return p
}

// ReadDeath reads a DeathPayload.
func ReadDeath(msg *Message) (userID, role int32, h ipc.Handle, err error) {
	if userID, err = ReadUser(msg); err != nil {
		return 0, 0, ipc.Handle{}, err
	}
	if role, err = msg.Payload.ReadInt32(); err != nil {
		return 0, 0, ipc.Handle{}, err
	}
	h, err = msg.Payload.ReadHandle()
	return userID, role, h, err
}
